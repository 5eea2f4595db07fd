package audio

import (
	"time"

	"github.com/29minhanh/roc-toolkit/pkg/format"
	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

// Depacketizer — первая стадия фрейм-домена (spec §4.7): собирает
// декодированные сэмплы последовательных пакетов в кадры
// фиксированного размера, driven by demand (ReadFrame запрашивает
// ровно samplesPerChannel сэмплов на канал). Разрывы временных меток
// между пакетами дополняются тишиной и отмечаются FlagDropsDetected;
// нехватка пакетов для завершения текущего кадра — FlagIncomplete.
type Depacketizer struct {
	upstream packet.Reader
	spec     format.SampleSpec
	channels int

	havePos bool
	nextTS  uint32

	pending       *packet.Packet
	pendingOffset int

	gapRemaining int
	gapPacket    *packet.Packet

	haveCaptureBase bool
	baseTS          uint32
	captureBase     time.Time
}

// NewDepacketizer создаёт Depacketizer над upstream, который должен
// уже отдавать пакеты с заполненными Populator'ом производными
// полями (Samples, DecodedSamples).
func NewDepacketizer(upstream packet.Reader, spec format.SampleSpec) *Depacketizer {
	return &Depacketizer{upstream: upstream, spec: spec, channels: spec.Channels()}
}

// ReadFrame реализует FrameReader.
func (d *Depacketizer) ReadFrame(samplesPerChannel int) (*Frame, error) {
	channels := d.channels
	out := make([]int16, samplesPerChannel*channels)
	filled := 0
	var flags FrameFlags
	var startTS uint32
	haveStart := false

	for filled < samplesPerChannel {
		if d.gapRemaining > 0 {
			take := min(d.gapRemaining, samplesPerChannel-filled)
			if !haveStart {
				startTS = d.nextTS
				haveStart = true
			}
			filled += take
			d.gapRemaining -= take
			d.nextTS += uint32(take)
			flags |= FlagDropsDetected
			continue
		}

		if d.pending == nil {
			if d.gapPacket != nil {
				d.pending = d.gapPacket
				d.gapPacket = nil
				d.pendingOffset = 0
			} else {
				p, err := d.upstream.Read()
				if err != nil {
					return nil, err
				}
				if p == nil {
					break
				}
				if !p.PopulatorFilled || p.DecodedSamples == 0 {
					p.Release()
					continue
				}
				if !d.havePos {
					d.nextTS = p.Timestamp()
					d.havePos = true
				}

				gap := int32(p.Timestamp() - d.nextTS)
				if gap > 0 {
					d.gapRemaining = int(gap)
					d.gapPacket = p
					continue
				}
				if gap < 0 {
					// Late packet: its head overlaps samples already
					// emitted at an earlier nextTS. Discard the
					// overlapping head and use only the tail (spec
					// §4.7); a packet that is entirely stale drains to
					// availPerChannel <= 0 below and is released
					// without producing any sample.
					d.pendingOffset = int(-gap)
				} else {
					d.pendingOffset = 0
				}
				d.pending = p
			}
		}

		if !haveStart {
			startTS = d.nextTS
			haveStart = true
		}

		availPerChannel := len(d.pending.Samples)/channels - d.pendingOffset
		if availPerChannel <= 0 {
			d.pending.Release()
			d.pending = nil
			continue
		}

		take := min(availPerChannel, samplesPerChannel-filled)
		srcOff := d.pendingOffset * channels
		dstOff := filled * channels
		copy(out[dstOff:dstOff+take*channels], d.pending.Samples[srcOff:srcOff+take*channels])

		filled += take
		d.pendingOffset += take
		d.nextTS += uint32(take)

		if d.pendingOffset*channels >= len(d.pending.Samples) {
			d.pending.Release()
			d.pending = nil
		}
	}

	if !haveStart {
		startTS = d.nextTS
		haveStart = true
	}
	if filled < samplesPerChannel {
		flags |= FlagIncomplete
		d.nextTS += uint32(samplesPerChannel - filled)
	}

	if !d.haveCaptureBase {
		d.haveCaptureBase = true
		d.baseTS = startTS
		d.captureBase = time.Now()
	}
	elapsed := int64(int32(startTS - d.baseTS))
	captureTime := d.captureBase.Add(time.Duration(d.spec.SamplesToDuration(uint64(elapsed))))

	return &Frame{
		Samples:     out,
		StartTS:     startTS,
		CaptureTime: captureTime,
		ChannelMask: d.spec.ChannelMask,
		SampleRate:  d.spec.SampleRate,
		Flags:       flags,
	}, nil
}

// NextOutputTimestamp returns the source-stream timestamp of the next
// sample this Depacketizer will emit, i.e. its read cursor into the
// packet-domain timeline. LatencyMonitor uses it, not HeadTimestamp,
// as the trailing edge of the latency measurement (spec §4.11 point 1),
// since the depacketizer's cursor lags the queue head by whatever the
// FEC/validator/populator stages are still holding. ok is false before
// the first packet has been consumed.
func (d *Depacketizer) NextOutputTimestamp() (uint32, bool) {
	return d.nextTS, d.havePos
}
