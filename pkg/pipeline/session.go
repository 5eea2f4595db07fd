package pipeline

import (
	"context"
	"log/slog"
	"math/bits"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/pion/rtcp"

	"github.com/29minhanh/roc-toolkit/pkg/audio"
	"github.com/29minhanh/roc-toolkit/pkg/fec"
	"github.com/29minhanh/roc-toolkit/pkg/format"
	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

const (
	sessionStateActive = "active"
	sessionStateFailed = "failed"
)

// Session — один приёмный поток от источника к playout (spec §4.12
// "Session Lifecycle"): владеет всей цепочкой ридеров пакетного и
// фрейм-доменов, построенной по фиксированному порядку конструирования
// (Router → SortedQueue(s) [→ FEC Reader] → Validator → Populator →
// DelayedReader → Depacketizer → Watchdog → ChannelMapper → Resampler
// → Poisoner), плюс LatencyMonitor, замыкающий контур на очередь и
// Resampler. Состояние Active/Failed необратимо, как и в
// DelayedReader, — тем же fsm-идиомом.
type Session struct {
	id     uuid.UUID
	cfg    SessionConfig
	spec   format.SampleSpec
	logger *slog.Logger

	router      *packet.Router
	audioQueue  *packet.SortedQueue
	repairQueue *packet.SortedQueue
	fecReader   *fec.Reader

	frames       audio.FrameReader
	depacketizer *audio.Depacketizer
	resampler    *audio.ResamplerReader
	watchdog     *audio.Watchdog
	monitor      *audio.LatencyMonitor

	metrics  *Metrics
	lastLink LinkMetrics

	machine *fsm.FSM
	err     error

	framesSinceTick int
}

// ID returns the session's collision-resistant identifier, used to
// correlate log lines and metric labels across a receiver that may
// outlive many short-lived per-source sessions (spec.md DOMAIN STACK:
// upgrades the teacher's plain sessionID string to a uuid.UUID for
// that reason).
func (s *Session) ID() uuid.UUID {
	return s.id
}

// SetMetrics wires a shared *Metrics into the session so that
// AddLinkMetrics also updates the receiver-wide Prometheus gauges.
// Optional: a session with no *Metrics still tracks LastLinkMetrics().
func (s *Session) SetMetrics(m *Metrics) {
	s.metrics = m
}

// NewSession строит Session для одного источника вещания. formats
// разрешает cfg.PayloadType в Format; если формат неизвестен, или
// cfg.FEC.Enabled и codec не инициализируется, Session возвращается в
// состоянии Failed (spec §4.12 "unknown payload type leaves the
// session invalid"; spec §4.6 "codec init failure").
func NewSession(cfg SessionConfig, formats *format.Map, fecCodec fec.Codec) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		id:     uuid.New(),
		cfg:    cfg,
		logger: logger,
		machine: fsm.NewFSM(
			sessionStateActive,
			fsm.Events{
				{Name: "fail", Src: []string{sessionStateActive}, Dst: sessionStateFailed},
			},
			fsm.Callbacks{},
		),
	}

	fmt := formats.Format(cfg.PayloadType)
	if fmt == nil || fmt.NewDecoder == nil {
		s.fail(newSessionError(ErrUnknownPayloadType, nil))
		return s
	}
	s.spec = fmt.SampleSpec

	s.router = packet.NewRouter()
	s.audioQueue = packet.NewSortedQueue(0)
	_ = s.router.AddRoute(s.audioQueue, packet.FlagAudio)

	var postFEC packet.Reader = s.audioQueue
	if cfg.FEC.Enabled {
		s.repairQueue = packet.NewSortedQueue(0)
		_ = s.router.AddRoute(s.repairQueue, packet.FlagRepair)

		s.fecReader = fec.NewReader(s.audioQueue, s.repairQueue, fecCodec, fec.ReaderConfig{
			K:                cfg.FEC.K,
			M:                cfg.FEC.M,
			MaxSBNJump:       cfg.FEC.MaxSBNJump,
			MaxPendingBlocks: cfg.FEC.MaxPendingBlocks,
			SamplesPerPacket: cfg.FEC.SamplesPerPacket,
		})
		if !s.fecReader.Valid() {
			s.fail(newSessionError(ErrCodecInit, nil))
			return s
		}
		postFEC = s.fecReader
	}

	validator := packet.NewValidator(postFEC, packet.ValidatorConfig{
		MaxSNJump: cfg.Validator.MaxSNJump,
		MaxTSJump: cfg.Validator.MaxTSJump,
	}, s.spec, cfg.PayloadType)

	decoder := fmt.NewDecoder()
	populator := packet.NewPopulator(validator, decoder, s.spec)

	delayed := packet.NewDelayedReader(populator, cfg.TargetLatency)
	s.depacketizer = audio.NewDepacketizer(delayed, s.spec)

	s.watchdog = audio.NewWatchdog(s.depacketizer, audio.WatchdogConfig{
		NoPlaybackTimeout:     cfg.Watchdog.NoPlaybackTimeout,
		BrokenPlaybackTimeout: cfg.Watchdog.BrokenPlaybackTimeout,
		FrameStatusWindow:     cfg.Watchdog.FrameStatusWindow,
		BreakageThreshold:     cfg.Watchdog.BreakageThreshold,
	})

	channelMapper := audio.NewChannelMapper(s.watchdog, s.spec.ChannelMask, s.spec.ChannelMask)
	s.resampler = audio.NewResamplerReader(channelMapper, audio.LinearResampler{}, s.spec.Channels())
	s.frames = audio.NewPoisonReader(s.resampler, cfg.PoisonEnabled)

	s.monitor = audio.NewLatencyMonitor(s.audioQueue, s.depacketizer, s.resampler, cfg.TargetLatency, cfg.LatencyTolerance,
		cfg.Latency.Kp, cfg.Latency.Ki, cfg.Latency.Epsilon)

	return s
}

// SetOutputFormat перенастраивает ChannelMapper на выдачу outputMask
// каналов вместо формата источника — вызывается один раз владельцем
// ресивера сразу после NewSession, до первого ReadFrame.
func (s *Session) SetOutputFormat(outputMask uint32) {
	if !s.Valid() {
		return
	}
	channelMapper := audio.NewChannelMapper(s.watchdog, s.spec.ChannelMask, outputMask)
	s.resampler = audio.NewResamplerReader(channelMapper, audio.LinearResampler{}, bits.OnesCount32(outputMask))
	s.frames = audio.NewPoisonReader(s.resampler, s.cfg.PoisonEnabled)
	s.monitor = audio.NewLatencyMonitor(s.audioQueue, s.depacketizer, s.resampler, s.cfg.TargetLatency, s.cfg.LatencyTolerance,
		s.cfg.Latency.Kp, s.cfg.Latency.Ki, s.cfg.Latency.Epsilon)
}

// Valid сообщает, находится ли сессия в активном состоянии.
func (s *Session) Valid() bool {
	return s.machine.Is(sessionStateActive)
}

// Err возвращает ошибку, которой сессия завершилась, либо nil.
func (s *Session) Err() error {
	return s.err
}

func (s *Session) fail(err error) {
	if s.err != nil {
		return
	}
	s.err = err
	_ = s.machine.Event(context.Background(), "fail")
	s.logger.Warn("session failed", "session_id", s.id, "error", err)
}

// Handle маршрутизирует входящий пакет в цепочку сессии (spec §4.1
// "Session Router").
func (s *Session) Handle(p *packet.Packet) error {
	if !s.Valid() {
		p.Release()
		return s.err
	}
	return s.router.Write(p)
}

// ReadFrame пулит один фрейм из полной цепочки, периодически двигая
// LatencyMonitor вперёд (spec §5: монитор не владеет собственным
// потоком, драйвер сессии продвигает его тактами). Любая ошибка от
// нижестоящих стадий необратимо переводит сессию в Failed.
func (s *Session) ReadFrame(samplesPerChannel int) (*audio.Frame, error) {
	if !s.Valid() {
		return nil, s.err
	}

	f, err := s.frames.ReadFrame(samplesPerChannel)
	if err != nil {
		s.fail(classifyFrameError(err))
		return nil, s.err
	}
	if f != nil && f.Flags.Has(audio.FlagDropsDetected) {
		s.logger.Warn("frame concealed a packet-domain gap", "session_id", s.id, "start_ts", f.StartTS)
	}
	if s.metrics != nil && f != nil {
		s.metrics.ObserveFrame(f.Flags.Has(audio.FlagIncomplete), s.resampler.Scale())
	}

	s.framesSinceTick++
	if s.cfg.Latency.TickIntervalFrames <= 0 || s.framesSinceTick >= s.cfg.Latency.TickIntervalFrames {
		s.framesSinceTick = 0
		if tickErr := s.monitor.Tick(); tickErr != nil {
			s.fail(newSessionError(ErrUnknown, tickErr))
			return f, s.err
		}
	}

	return f, nil
}

// AddSendingMetrics ingests a sender-side RTCP Sender Report carried
// out of band from the RTP media stream (spec §11 "reserved RTCP
// metrics hooks", recovered from the `// TODO` stub of the same name
// in original_source/.../receiver_session.cpp). It only logs; nothing
// downstream currently derives behavior from sender-side counters.
func (s *Session) AddSendingMetrics(sr *rtcp.SenderReport) {
	if sr == nil {
		return
	}
	s.logger.Debug("sending metrics", "session_id", s.id,
		"packet_count", sr.PacketCount, "octet_count", sr.OctetCount)
}

// AddLinkMetrics ingests a receiver-side RTCP Receiver Report block
// describing the reverse link as seen by the sender, recording it as
// LastLinkMetrics and, if a *Metrics has been wired in via SetMetrics,
// publishing it to the receiver-wide Prometheus gauges.
func (s *Session) AddLinkMetrics(rr *rtcp.ReceptionReport) {
	if rr == nil {
		return
	}
	s.lastLink = LinkMetrics{
		FractionLost:  float64(rr.FractionLost) / 256.0,
		RoundTripTime: float64(rr.Delay) / 65536.0,
	}
	if s.metrics != nil {
		s.metrics.AddLinkMetrics(rr)
	}
	s.logger.Debug("link metrics", "session_id", s.id,
		"fraction_lost", s.lastLink.FractionLost, "round_trip_time", s.lastLink.RoundTripTime)
}

// LastLinkMetrics returns the most recent link metrics recorded by
// AddLinkMetrics, or the zero value if none has arrived yet.
func (s *Session) LastLinkMetrics() LinkMetrics {
	return s.lastLink
}

func classifyFrameError(err error) error {
	switch err {
	case audio.ErrNoPlayback:
		return newSessionError(ErrNoPlayback, err)
	case audio.ErrBrokenPlayback:
		return newSessionError(ErrBrokenPlayback, err)
	case packet.ErrBadSource:
		return newSessionError(ErrSourceChanged, err)
	case packet.ErrBadPayloadType:
		return newSessionError(ErrPayloadTypeChanged, err)
	case packet.ErrSeqJump:
		return newSessionError(ErrSequenceJump, err)
	case packet.ErrTimestampJump:
		return newSessionError(ErrTimestampJump, err)
	default:
		return newSessionError(ErrUnknown, err)
	}
}
