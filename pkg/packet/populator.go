package packet

import (
	"time"

	"github.com/29minhanh/roc-toolkit/pkg/format"
)

// Populator заполняет производные поля каждого пакета данными из
// PayloadDecoder'а: число декодированных сэмплов, время захвата и
// маску каналов (spec §4.4). Чистое преобразование — никогда не
// отказывает; при ошибке декодера пакет помечается как несущий 0
// сэмплов, а не отбрасывается, чтобы вышестоящий Depacketizer видел
// его как пустой, а не как пропавший.
type Populator struct {
	upstream Reader
	decoder  format.PayloadDecoder
	spec     format.SampleSpec

	captureBase time.Time
	haveBase    bool
	baseTS      uint32
}

// NewPopulator создаёт Populator, использующий decoder для получения
// декодированных сэмплов каждого пакета.
func NewPopulator(upstream Reader, decoder format.PayloadDecoder, spec format.SampleSpec) *Populator {
	return &Populator{upstream: upstream, decoder: decoder, spec: spec}
}

// Read пропускает пакет через upstream и заполняет его производные
// поля.
func (p *Populator) Read() (*Packet, error) {
	pkt, err := p.upstream.Read()
	if err != nil {
		return nil, err
	}
	if pkt == nil {
		return nil, nil
	}

	p.fill(pkt)
	return pkt, nil
}

func (p *Populator) fill(pkt *Packet) {
	if !p.haveBase {
		p.haveBase = true
		p.baseTS = pkt.Timestamp()
		p.captureBase = time.Now()
	}

	scratch := make([]int16, len(pkt.RTP.Payload)*4+p.spec.Channels())
	n, err := p.decoder.Decode(pkt.RTP.Payload, scratch)
	if err != nil {
		n = 0
	}
	pkt.Samples = scratch[:n]
	pkt.DecodedSamples = n
	pkt.ChannelMask = p.spec.ChannelMask

	elapsedSamples := int64(int32(pkt.Timestamp() - p.baseTS))
	pkt.CaptureTime = p.captureBase.Add(time.Duration(p.spec.SamplesToDuration(uint64(elapsedSamples))))
	pkt.PopulatorFilled = true
}
