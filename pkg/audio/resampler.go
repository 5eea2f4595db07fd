package audio

import (
	"math"
	"sync/atomic"
)

// Resampler конвертирует interleaved PCM с одной частоты выборки на
// другую под управлением непрерывно изменяемого коэффициента scale
// (spec §4.10 "the resampler exposes a continuous scaling knob s").
// Реализация интерполяции — вне области спецификации; здесь
// используется линейная интерполяция как справочная, не претендующая
// на качество реальных windowed-sinc или speex-подобных реземплеров.
type Resampler interface {
	// Resample читает из in ровно столько сэмплов, сколько нужно для
	// получения outSamplesPerChannel выходных кадров при заданном
	// scale, и возвращает результат вместе с числом фактически
	// потреблённых входных кадров (может быть меньше len(in)/channels
	// при нехватке данных).
	Resample(in []int16, channels int, scale float64, outSamplesPerChannel int) (out []int16, consumed int)
}

// LinearResampler — простой линейно-интерполирующий реземплер.
type LinearResampler struct{}

func (LinearResampler) Resample(in []int16, channels int, scale float64, outSamplesPerChannel int) ([]int16, int) {
	inFrames := len(in) / channels
	out := make([]int16, outSamplesPerChannel*channels)

	consumedFrames := 0
	for i := 0; i < outSamplesPerChannel; i++ {
		pos := float64(i) * scale
		idx := int(math.Floor(pos))
		frac := pos - float64(idx)

		if idx+1 >= inFrames {
			if idx >= inFrames {
				break
			}
			for c := 0; c < channels; c++ {
				out[i*channels+c] = in[idx*channels+c]
			}
			consumedFrames = idx + 1
			continue
		}

		for c := 0; c < channels; c++ {
			a := float64(in[idx*channels+c])
			b := float64(in[(idx+1)*channels+c])
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
		consumedFrames = idx + 2
	}
	if consumedFrames > inFrames {
		consumedFrames = inFrames
	}
	return out, consumedFrames
}

// ResamplerReader — FrameReader-стадия, применяющая Resampler со
// scale, которым LatencyMonitor управляет в реальном времени через
// SetScale (замкнутый контур spec §4.11). scale хранится атомарно,
// потому что LatencyMonitor может выполняться в отдельной горутине от
// драйвера чтения фреймов (spec §5).
type ResamplerReader struct {
	upstream FrameReader
	resamp   Resampler
	channels int
	scale    atomic.Value // float64

	leftover []int16

	haveAnchor  bool
	anchorTS    uint32
	channelMask uint32
	sampleRate  uint32
	outputPos   uint64
}

// NewResamplerReader создаёт ResamplerReader с начальным scale=1.0
// (без коррекции).
func NewResamplerReader(upstream FrameReader, resamp Resampler, channels int) *ResamplerReader {
	r := &ResamplerReader{upstream: upstream, resamp: resamp, channels: channels}
	r.scale.Store(float64(1.0))
	return r
}

// SetScale обновляет коэффициент масштабирования, применяемый к
// последующим кадрам.
func (r *ResamplerReader) SetScale(scale float64) {
	r.scale.Store(scale)
}

// Scale возвращает текущий коэффициент масштабирования.
func (r *ResamplerReader) Scale() float64 {
	return r.scale.Load().(float64)
}

// ReadFrame реализует FrameReader.
func (r *ResamplerReader) ReadFrame(samplesPerChannel int) (*Frame, error) {
	scale := r.Scale()

	needed := int(math.Ceil(float64(samplesPerChannel)*scale)) + 2
	haveFrames := len(r.leftover) / r.channels
	if haveFrames < needed {
		pull := needed - haveFrames
		f, err := r.upstream.ReadFrame(pull)
		if err != nil {
			return nil, err
		}
		if f != nil {
			if !r.haveAnchor {
				r.haveAnchor = true
				r.anchorTS = f.StartTS
			}
			r.channelMask = f.ChannelMask
			r.sampleRate = f.SampleRate
			r.leftover = append(r.leftover, f.Samples...)
		}
	}

	out, consumed := r.resamp.Resample(r.leftover, r.channels, scale, samplesPerChannel)
	r.leftover = r.leftover[consumed*r.channels:]

	// scale corrects small clock drift, not a full sample-rate
	// conversion (spec §4.11), so timestamps advance nominally rather
	// than being rescaled by 1/scale.
	startTS := r.anchorTS + uint32(r.outputPos)
	r.outputPos += uint64(samplesPerChannel)

	return &Frame{
		Samples:     out,
		StartTS:     startTS,
		ChannelMask: r.channelMask,
		SampleRate:  r.sampleRate,
	}, nil
}
