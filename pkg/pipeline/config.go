package pipeline

import "log/slog"

// SessionConfig — конфигурация одной сессии (spec §6 "Session
// configuration"): payload type, целевая задержка и пороги для
// стадий, которые сессия строит вокруг этого потока.
type SessionConfig struct {
	// PayloadType выбирает Format из общего format.Map ресивера.
	PayloadType uint8

	// Logger получает структурные записи о жизненном цикле сессии
	// (spec.md AMBIENT STACK: тот же log/slog, которым уже пользуется
	// teacher в pkg/media/session.go). nil означает slog.Default().
	Logger *slog.Logger

	// TargetLatency — желаемый запас заполнения очереди над указателем
	// чтения депакетизатора, в сэмплах исходного потока (spec §3).
	TargetLatency uint32
	// LatencyTolerance — максимальное отклонение измеренной задержки
	// от TargetLatency, после которого LatencyMonitor считает дрейф
	// невосстановимым (spec §4.11 point 3).
	LatencyTolerance uint32

	Validator ValidatorConfig
	FEC       FECConfig
	Watchdog  WatchdogConfig
	Latency   LatencyConfig

	// PoisonEnabled turns on the debug Poisoner stage (spec §4 last
	// frame-domain stage). Off by default; meant for debug builds.
	PoisonEnabled bool
}

// ValidatorConfig — spec §6 "rtp_validator: {max_sn_jump, max_ts_jump}".
type ValidatorConfig struct {
	MaxSNJump uint16
	MaxTSJump uint32
}

// FECConfig — spec §6 "fec_reader: {max_sbn_jump, max_pending_blocks}".
type FECConfig struct {
	Enabled          bool
	K, M             int
	MaxSBNJump       uint32
	MaxPendingBlocks int
	SamplesPerPacket uint32
}

// WatchdogConfig — spec §6 "watchdog: {no_playback_timeout,
// broken_playback_timeout, frame_status_window,
// breakage_detection_window}".
type WatchdogConfig struct {
	NoPlaybackTimeout     uint32
	BrokenPlaybackTimeout uint32
	FrameStatusWindow     int
	BreakageThreshold     float64
}

// LatencyConfig — коэффициенты ПИ-регулятора LatencyMonitor'а
// (spec §4.11 point 2).
type LatencyConfig struct {
	Kp, Ki  float64
	Epsilon float64
	// TickIntervalFrames — раз в сколько прочитанных фреймов драйвер
	// сессии вызывает LatencyMonitor.Tick (spec §5: сам монитор не
	// владеет потоком).
	TickIntervalFrames int
}

// ReceiverConfig — общая конфигурация ресивера (spec §6 "Common
// configuration"). Receiver и NewSession её не читают: сессия
// строит неограниченные очереди и берёт раскладку каналов из Format,
// а выходная маска задаётся отдельно через Session.SetOutputFormat.
type ReceiverConfig struct {
	SamplesPerFrame  int
	OutputSampleRate uint32
	OutputChannels   uint32

	SortedQueueCapacity int

	PoisonDebugFrames bool
}

// DefaultSessionConfig возвращает конфигурацию по умолчанию, пригодную
// для сессии без FEC (spec §8 сценарии без потерь используют похожие
// значения; конкретные тесты переопределяют поля явно).
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TargetLatency:    800,
		LatencyTolerance: 400,
		Validator: ValidatorConfig{
			MaxSNJump: 100,
			MaxTSJump: 48000,
		},
		Watchdog: WatchdogConfig{
			NoPlaybackTimeout:     16000,
			BrokenPlaybackTimeout: 16000,
			FrameStatusWindow:     32,
			BreakageThreshold:     0.5,
		},
		Latency: LatencyConfig{
			Kp:                 0.001,
			Ki:                 0.0001,
			Epsilon:            0.05,
			TickIntervalFrames: 8,
		},
	}
}

// DefaultReceiverConfig возвращает конфигурацию ресивера по умолчанию.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		SamplesPerFrame:     10,
		OutputSampleRate:    44100,
		OutputChannels:      0x3,
		SortedQueueCapacity: 256,
		PoisonDebugFrames:   false,
	}
}
