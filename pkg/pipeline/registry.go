package pipeline

import (
	"log/slog"
	"net"
	"sync"

	"github.com/29minhanh/roc-toolkit/pkg/fec"
	"github.com/29minhanh/roc-toolkit/pkg/format"
	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

// SessionFactory builds SessionConfig for a newly observed source
// address, deriving it from ReceiverConfig and the pulled packet's
// payload type; returning ok=false rejects the source.
type SessionFactory func(src net.Addr, firstPacket *packet.Packet) (SessionConfig, bool)

// Receiver — Session Router на уровне ресивера (spec §2): держит по
// одной Session на каждый наблюдаемый source address и маршрутизирует
// входящие пакеты в соответствующую сессию, создавая её при первом
// пакете от нового источника. Отдельный от packet.Router, который
// маршрутизирует уже ВНУТРИ одной сессии по флагам пакета (audio vs
// repair).
type Receiver struct {
	mu       sync.Mutex
	formats  *format.Map
	fecCodec fec.Codec
	factory  SessionFactory
	logger   *slog.Logger
	metrics  *Metrics

	sessions map[string]*Session
}

// NewReceiver создаёт Receiver. fecCodec может быть nil, если ни одна
// сессия не будет запрашивать FEC.
func NewReceiver(formats *format.Map, fecCodec fec.Codec, factory SessionFactory) *Receiver {
	return &Receiver{
		formats:  formats,
		fecCodec: fecCodec,
		factory:  factory,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
}

// SetLogger overrides the receiver's structured logger (default
// slog.Default()); every Session it subsequently creates inherits it
// unless the factory's SessionConfig already sets one explicitly.
func (r *Receiver) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// SetMetrics wires a shared *Metrics into every Session the receiver
// creates from this point on, and updates SessionsActive as sessions
// are added and reaped.
func (r *Receiver) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Handle маршрутизирует пакет от src в его сессию, создавая её при
// необходимости. Пакеты от источников, отвергнутых factory, или
// адресованные уже неисправной сессии, освобождаются немедленно.
func (r *Receiver) Handle(src net.Addr, p *packet.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := src.String()
	sess, ok := r.sessions[key]
	if !ok {
		cfg, accept := r.factory(src, p)
		if !accept {
			r.logger.Info("rejected packet from unrecognized source", "source", key)
			p.Release()
			return nil
		}
		if cfg.Logger == nil {
			cfg.Logger = r.logger
		}
		sess = NewSession(cfg, r.formats, r.fecCodec)
		if r.metrics != nil {
			sess.SetMetrics(r.metrics)
		}
		if !sess.Valid() {
			r.logger.Error("session construction failed", "source", key, "error", sess.Err())
		} else {
			r.logger.Info("session created", "source", key, "session_id", sess.ID())
		}
		r.sessions[key] = sess
		if r.metrics != nil {
			r.metrics.SessionsActive.Set(float64(len(r.sessions)))
		}
	}

	if !sess.Valid() {
		p.Release()
		delete(r.sessions, key)
		if r.metrics != nil {
			r.metrics.SessionsFailed.WithLabelValues(classifyErrorCode(sess.Err()).String()).Inc()
			r.metrics.SessionsActive.Set(float64(len(r.sessions)))
		}
		return sess.Err()
	}

	return sess.Handle(p)
}

// Session возвращает сессию для src, если она существует.
func (r *Receiver) Session(src net.Addr) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[src.String()]
	return s, ok
}

// Sessions возвращает снимок адресов всех отслеживаемых источников.
func (r *Receiver) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for k := range r.sessions {
		out = append(out, k)
	}
	return out
}

// Reap удаляет из реестра все сессии, перешедшие в Failed —
// вызывается периодически владельцем ресивера, а не самим Receiver'ом
// (spec §5: ресивер не заводит собственных фоновых горутин сверх того,
// что явно описано).
func (r *Receiver) Reap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for k, s := range r.sessions {
		if !s.Valid() {
			r.logger.Info("session reaped", "source", k, "session_id", s.ID(), "error", s.Err())
			delete(r.sessions, k)
			removed++
		}
	}
	if r.metrics != nil && removed > 0 {
		r.metrics.SessionsActive.Set(float64(len(r.sessions)))
	}
	return removed
}
