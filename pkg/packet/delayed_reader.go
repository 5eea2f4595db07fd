package packet

import (
	"context"

	"github.com/looplab/fsm"
)

const (
	delayedStateFilling  = "filling"
	delayedStateDraining = "draining"
)

// DelayedReader буферизует начальный префикс пакетов, прежде чем
// отдать хоть один, чтобы установить немедленный playout-буфер в
// targetLatency сэмплов исходного потока (spec §4.5). Состояние
// (Filling → Draining, необратимо) моделируется через looplab/fsm —
// тот же state-machine идиом, которым teacher-репозиторий пользуется
// для управления жизненным циклом диалогов.
type DelayedReader struct {
	upstream      Reader
	targetLatency uint32

	buffer    []*Packet
	haveFirst bool
	firstTS   uint32

	machine *fsm.FSM
}

// NewDelayedReader создаёт DelayedReader с targetLatency, выраженной
// в сэмплах исходного потока (spec §3 "target_latency is expressed in
// source-stream samples").
func NewDelayedReader(upstream Reader, targetLatency uint32) *DelayedReader {
	return &DelayedReader{
		upstream:      upstream,
		targetLatency: targetLatency,
		machine: fsm.NewFSM(
			delayedStateFilling,
			fsm.Events{
				{Name: "fill_complete", Src: []string{delayedStateFilling}, Dst: delayedStateDraining},
			},
			fsm.Callbacks{},
		),
	}
}

// Read реализует Filling/Draining семантику: в Filling всегда
// возвращает nil, продолжая накапливать пакеты, пока буферизованная
// длительность не достигнет targetLatency; первый и все последующие
// вызовы в Draining сначала осушают буфер по порядку, а затем
// пропускают чтения напрямую к upstream.
func (d *DelayedReader) Read() (*Packet, error) {
	if d.machine.Is(delayedStateFilling) {
		if err := d.fill(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if len(d.buffer) > 0 {
		p := d.buffer[0]
		d.buffer = d.buffer[1:]
		return p, nil
	}

	return d.upstream.Read()
}

func (d *DelayedReader) fill() error {
	for {
		p, err := d.upstream.Read()
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}

		if !d.haveFirst {
			d.haveFirst = true
			d.firstTS = p.Timestamp()
		}

		d.buffer = append(d.buffer, p)

		buffered := uint32(int32(p.Timestamp() - d.firstTS))
		if buffered >= d.targetLatency {
			_ = d.machine.Event(context.Background(), "fill_complete")
			return nil
		}
	}
}

// Draining сообщает, покинул ли DelayedReader состояние Filling.
func (d *DelayedReader) Draining() bool {
	return d.machine.Is(delayedStateDraining)
}
