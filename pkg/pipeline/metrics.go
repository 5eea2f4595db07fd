package pipeline

import (
	"net/http"

	"github.com/pion/rtcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics — набор prometheus-метрик ресивера, собираемых по всем
// сессиям (spec §11 supplemented feature: оригинальная реализация
// резервирует хуки add_sending_metrics/add_link_metrics для отчётов
// от отправителя; здесь это конкретные Prometheus-инструменты, а не
// заглушки).
type Metrics struct {
	gatherer prometheus.Gatherer

	PacketsDropped   *prometheus.CounterVec
	SessionsFailed   *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	FramesIncomplete prometheus.Counter
	ResamplerScale   prometheus.Gauge
	RoundTripTime    prometheus.Gauge
	FractionLost     prometheus.Gauge
}

// NewMetrics регистрирует и возвращает набор метрик ресивера в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	m := &Metrics{
		gatherer: gatherer,
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roc_receiver",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped by a packet-domain stage, labeled by stage.",
		}, []string{"stage"}),
		SessionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roc_receiver",
			Name:      "sessions_failed_total",
			Help:      "Sessions that transitioned to Failed, labeled by error code.",
		}, []string{"code"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roc_receiver",
			Name:      "sessions_active",
			Help:      "Sessions currently in the Active state.",
		}),
		FramesIncomplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "roc_receiver",
			Name:      "frames_incomplete_total",
			Help:      "Frames emitted with FlagIncomplete set.",
		}),
		ResamplerScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roc_receiver",
			Name:      "resampler_scale",
			Help:      "Current LatencyMonitor-driven resampler scale factor.",
		}),
		RoundTripTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roc_receiver",
			Name:      "rtcp_round_trip_seconds",
			Help:      "Round-trip time derived from RTCP sender/receiver report pairs.",
		}),
		FractionLost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "roc_receiver",
			Name:      "rtcp_fraction_lost",
			Help:      "Fraction lost reported in the most recent RTCP receiver report.",
		}),
	}

	reg.MustRegister(
		m.PacketsDropped, m.SessionsFailed, m.SessionsActive,
		m.FramesIncomplete, m.ResamplerScale, m.RoundTripTime, m.FractionLost,
	)
	return m
}

// Handler returns an http.Handler exposing every metric registered
// through this Metrics in the Prometheus text exposition format,
// mirroring the teacher's MetricsCollector.StartHTTPServer without
// owning the listening socket itself — hosting the HTTP server is the
// caller's concern (spec §1 puts "the hosting thread/loop" out of
// scope for the core).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame updates per-frame counters from a decoded frame's
// diagnostic flags and the resampler's current scale.
func (m *Metrics) ObserveFrame(incomplete bool, scale float64) {
	if incomplete {
		m.FramesIncomplete.Inc()
	}
	m.ResamplerScale.Set(scale)
}

// LinkMetrics is the small typed value a Session keeps from the most
// recent RTCP receiver report it was handed (spec §11 "reserved RTCP
// metrics hooks"), independent of whether a *Metrics is wired in to
// also publish it to Prometheus.
type LinkMetrics struct {
	RoundTripTime float64
	FractionLost  float64
}

// AddSendingMetrics accepts a sender-side RTCP Sender Report (spec
// §11: the original construction reserves this hook on every session
// even though the pull-based reader chain never calls it directly —
// RTCP arrives out of band from the RTP media stream). It records and
// publishes nothing: Metrics has no sender-report series.
func (m *Metrics) AddSendingMetrics(sr *rtcp.SenderReport) {
	if sr == nil {
		return
	}
	// The sender report's NTP/RTP timestamp pair is not used either:
	// reclock is a documented no-op in this receiver (see DESIGN.md).
	_ = sr.PacketCount
	_ = sr.OctetCount
}

// AddLinkMetrics ingests a receiver-side RTCP Receiver Report block
// describing the reverse link quality as seen by the sender.
func (m *Metrics) AddLinkMetrics(rr *rtcp.ReceptionReport) {
	if rr == nil {
		return
	}
	m.FractionLost.Set(float64(rr.FractionLost) / 256.0)
	m.RoundTripTime.Set(float64(rr.Delay) / 65536.0)
}
