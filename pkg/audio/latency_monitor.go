package audio

import "errors"

// ErrLatencyDrift — фатальная ошибка LatencyMonitor'а: измеренная
// задержка отклонилась от targetLatency больше, чем на
// latencyTolerance — контур считает это невосстановимым дрейфом, а
// не чем-то, что дальнейшая коррекция scale способна исправить
// (spec §4.11 point 3).
var ErrLatencyDrift = errors.New("audio: latency drift beyond tolerance")

// QueueTail — минимальный коллаборатор, которым LatencyMonitor
// узнаёт заднюю границу пакетного домена в сэмплах исходного потока.
// *packet.SortedQueue реализует его напрямую (TailTimestamp уже
// существует для этой цели).
type QueueTail interface {
	TailTimestamp() (uint32, bool)
}

// OutputPosition — non-owning ссылка на курсор чтения фрейм-домена,
// передняя граница измерения задержки (spec §4.11 point 1: "L = queue
// tail timestamp − depacketizer output timestamp"). *Depacketizer
// реализует его напрямую через NextOutputTimestamp.
type OutputPosition interface {
	NextOutputTimestamp() (uint32, bool)
}

// LatencyMonitor — замкнутый контур (spec §4.11): сравнивает текущую
// сквозную задержку — расстояние между хвостом очереди пакетного
// домена и курсором чтения депакетизатора — с targetLatency и
// подстраивает scale ResamplerReader'а частотным ПИ-регулятором
// `s_new = clamp(1 + Kp·e + Ki·Σe, 1-ε, 1+ε)`, тем же способом, каким
// teacher-репозиторий подстраивает джиттер-буфер под наблюдаемую
// задержку сети (адаптивный delay-controller с пропорциональной и
// интегральной составляющими). Монитор хранит только non-owning
// ссылки на очередь, депакетизатор и resampler — все три переживают
// его по построению (spec §3 "Ownership").
type LatencyMonitor struct {
	queue        QueueTail
	depacketizer OutputPosition
	resampler    *ResamplerReader

	targetLatency    float64
	latencyTolerance float64
	kp, ki           float64
	epsilon          float64
	integral         float64

	failed error
}

// NewLatencyMonitor создаёт LatencyMonitor. targetLatency и
// latencyTolerance выражены в сэмплах исходного потока; epsilon — та
// же величина ε из формулы регулятора, ограничивающая scale
// интервалом [1-ε, 1+ε].
func NewLatencyMonitor(queue QueueTail, depacketizer OutputPosition, resampler *ResamplerReader, targetLatency, latencyTolerance uint32, kp, ki, epsilon float64) *LatencyMonitor {
	return &LatencyMonitor{
		queue:            queue,
		depacketizer:     depacketizer,
		resampler:        resampler,
		targetLatency:    float64(targetLatency),
		latencyTolerance: float64(latencyTolerance),
		kp:               kp,
		ki:               ki,
		epsilon:          epsilon,
	}
}

// Tick пересчитывает scale по текущей задержке — разности между
// timestamp'ом хвоста очереди и курсором депакетизатора. Вызывается
// драйвером сессии периодически (spec §5, once per driven frame или
// по таймеру) — сам LatencyMonitor не владеет собственным потоком.
// Возвращает ErrLatencyDrift, если отклонение вышло за
// latencyTolerance; после этого Tick необратимо возвращает ту же
// ошибку.
func (m *LatencyMonitor) Tick() error {
	if m.failed != nil {
		return m.failed
	}
	if m.targetLatency == 0 {
		return nil
	}
	tail, ok1 := m.queue.TailTimestamp()
	outputTS, ok2 := m.depacketizer.NextOutputTimestamp()
	if !ok1 || !ok2 {
		return nil
	}

	latency := float64(int32(tail - outputTS))
	e := latency - m.targetLatency

	if m.latencyTolerance > 0 && (e > m.latencyTolerance || e < -m.latencyTolerance) {
		m.failed = ErrLatencyDrift
		return m.failed
	}

	m.integral += e
	// Anti-windup: clamp the accumulated integral to what a single
	// correction cycle could plausibly need.
	if m.integral > m.targetLatency {
		m.integral = m.targetLatency
	} else if m.integral < -m.targetLatency {
		m.integral = -m.targetLatency
	}

	scale := 1.0 + m.kp*e + m.ki*m.integral
	if scale < 1.0-m.epsilon {
		scale = 1.0 - m.epsilon
	} else if scale > 1.0+m.epsilon {
		scale = 1.0 + m.epsilon
	}

	m.resampler.SetScale(scale)
	return nil
}
