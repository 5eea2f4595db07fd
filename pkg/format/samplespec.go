// Package format содержит реестр форматов полезной нагрузки: пару
// (payload type, SampleSpec) и связанный с ней PayloadDecoder,
// используемые конвейером приёмника для выбора Format при создании
// сессии (spec §3 "Session", §6 "payload_type").
package format

import "math/bits"

// SampleSpec — пара (частота дискретизации, маска каналов),
// определяющая число каналов через population count маски (spec §3).
type SampleSpec struct {
	SampleRate  uint32
	ChannelMask uint32
}

// Channels возвращает количество каналов, закодированных в маске.
func (s SampleSpec) Channels() int {
	return bits.OnesCount32(s.ChannelMask)
}

// SamplesToDuration переводит число сэмплов на канал в наносекунды
// при частоте дискретизации данной спецификации.
func (s SampleSpec) SamplesToDuration(samples uint64) int64 {
	if s.SampleRate == 0 {
		return 0
	}
	return int64(samples) * int64(1e9) / int64(s.SampleRate)
}

// DurationToSamples переводит наносекунды в число сэмплов на канал
// при частоте дискретизации данной спецификации.
func (s SampleSpec) DurationToSamples(nanoseconds int64) uint64 {
	if s.SampleRate == 0 {
		return 0
	}
	return uint64(nanoseconds) * uint64(s.SampleRate) / uint64(1e9)
}

// IsZero сообщает, что спецификация не была заполнена.
func (s SampleSpec) IsZero() bool {
	return s.SampleRate == 0 && s.ChannelMask == 0
}
