// Package audio содержит фрейм-домен приёмного конвейера:
// Depacketizer, Watchdog, ChannelMapperReader, ResamplerReader,
// PoisonReader и LatencyMonitor (spec §4.7–§4.11).
package audio

import (
	"time"

	"github.com/29minhanh/roc-toolkit/pkg/format"
)

// FrameFlags — диагностические флаги фрейма (spec §4.7).
type FrameFlags uint32

const (
	// FlagIncomplete отмечает фрейм, для которого не хватило сэмплов
	// исходных пакетов и хвост был дополнен нулями/шумом-заглушкой.
	FlagIncomplete FrameFlags = 1 << iota
	// FlagDropsDetected отмечает фрейм, при сборке которого был
	// обнаружен разрыв временных меток относительно предыдущего кадра.
	FlagDropsDetected
)

// Has сообщает, установлены ли все биты want в f.
func (f FrameFlags) Has(want FrameFlags) bool {
	return f&want == want
}

// Frame — непрерывный блок PCM-сэмплов фрейм-домена (spec §3, §4.7).
// Samples упакованы interleaved по каналам согласно ChannelMask.
type Frame struct {
	Samples     []int16
	StartTS     uint32
	CaptureTime time.Time
	ChannelMask uint32
	SampleRate  uint32
	Flags       FrameFlags
}

// Spec возвращает SampleSpec, соответствующую формату фрейма.
func (f *Frame) Spec() format.SampleSpec {
	return format.SampleSpec{SampleRate: f.SampleRate, ChannelMask: f.ChannelMask}
}

// FrameReader — интерфейс фрейм-домена: каждая стадия пулит
// заранее известное число сэмплов на канал у вышестоящей стадии
// (spec §4.7 "the Depacketizer is driven by demand for a fixed
// number of samples per channel").
type FrameReader interface {
	// ReadFrame возвращает фрейм ровно с samplesPerChannel сэмплами на
	// канал, либо ошибку, если поток окончательно неисправен.
	ReadFrame(samplesPerChannel int) (*Frame, error)
}
