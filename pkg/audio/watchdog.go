package audio

import "errors"

// ErrNoPlayback и ErrBrokenPlayback — терминальные ошибки Watchdog'а
// (spec §4.8): первая — полное отсутствие годного звука дольше
// no_playback_timeout сэмплов подряд, вторая — доля неполных кадров в
// скользящем окне frame_status_window превышает breakage_threshold
// дольше broken_playback_timeout сэмплов подряд.
var (
	ErrNoPlayback     = errors.New("audio: no playback timeout exceeded")
	ErrBrokenPlayback = errors.New("audio: broken playback timeout exceeded")
)

// WatchdogConfig задаёт пороги Watchdog'а (spec §6 watchdog:
// {no_playback_timeout, broken_playback_timeout, frame_status_window,
// breakage_detection_window}). frame_status_window трактуется как
// число последних кадров, а не сэмплов: агрегация доли неполных
// кадров естественно ведётся по дискретным кадрам, а не по сэмплам
// внутри них (решённый Open Question, задокументирован в DESIGN.md).
type WatchdogConfig struct {
	NoPlaybackTimeout     uint32
	BrokenPlaybackTimeout uint32
	FrameStatusWindow     int
	BreakageThreshold     float64
}

// Watchdog оборачивает FrameReader и отслеживает два независимых
// признака деградации: полную тишину (no_playback) и устойчиво
// высокую долю неполных кадров в скользящем окне (broken_playback).
// Как только один из таймаутов превышен, Watchdog необратимо
// переходит в отказавшее состояние (spec §4.8 "once tripped, the
// stage fails permanently").
type Watchdog struct {
	upstream FrameReader
	cfg      WatchdogConfig

	samplesSinceGoodFrame uint32
	samplesSinceClean     uint32

	window       []bool
	windowStart  int
	windowFilled int
	incompleteCt int

	failed error
}

// NewWatchdog создаёт Watchdog с таймаутами, выраженными в сэмплах
// исходного потока. Нулевой таймаут отключает соответствующую
// проверку.
func NewWatchdog(upstream FrameReader, cfg WatchdogConfig) *Watchdog {
	w := int(cfg.FrameStatusWindow)
	if w <= 0 {
		w = 1
	}
	return &Watchdog{upstream: upstream, cfg: cfg, window: make([]bool, w)}
}

// ReadFrame реализует FrameReader.
func (w *Watchdog) ReadFrame(samplesPerChannel int) (*Frame, error) {
	if w.failed != nil {
		return nil, w.failed
	}

	f, err := w.upstream.ReadFrame(samplesPerChannel)
	if err != nil {
		w.failed = err
		return nil, err
	}
	if f == nil {
		return nil, nil
	}

	n := uint32(samplesPerChannel)
	incomplete := f.Flags.Has(FlagIncomplete)

	if incomplete {
		w.samplesSinceGoodFrame += n
	} else {
		w.samplesSinceGoodFrame = 0
	}

	w.pushWindow(incomplete)
	fraction := float64(w.incompleteCt) / float64(w.windowFilled)
	if fraction > w.cfg.BreakageThreshold {
		w.samplesSinceClean += n
	} else {
		w.samplesSinceClean = 0
	}

	if w.cfg.NoPlaybackTimeout > 0 && w.samplesSinceGoodFrame >= w.cfg.NoPlaybackTimeout {
		w.failed = ErrNoPlayback
		return nil, w.failed
	}
	if w.cfg.BrokenPlaybackTimeout > 0 && w.samplesSinceClean >= w.cfg.BrokenPlaybackTimeout {
		w.failed = ErrBrokenPlayback
		return nil, w.failed
	}

	return f, nil
}

func (w *Watchdog) pushWindow(incomplete bool) {
	if w.windowFilled == len(w.window) {
		if w.window[w.windowStart] {
			w.incompleteCt--
		}
	} else {
		w.windowFilled++
	}
	w.window[w.windowStart] = incomplete
	if incomplete {
		w.incompleteCt++
	}
	w.windowStart = (w.windowStart + 1) % len(w.window)
}

// Failed возвращает ошибку, если Watchdog уже сработал.
func (w *Watchdog) Failed() error {
	return w.failed
}
