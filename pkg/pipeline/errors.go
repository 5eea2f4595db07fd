package pipeline

import (
	"errors"
	"fmt"
)

// ReceiverErrorCode классифицирует терминальные отказы Session,
// зеркалируя то, как teacher-репозиторий различает классы ошибок
// SIP-диалога типизированным кодом вместо голого error-текста —
// тот же приём, применённый к причинам отказа приёмного конвейера
// (spec §4.12 "a session becomes permanently invalid").
type ReceiverErrorCode int

const (
	// ErrUnknown — неклассифицированная ошибка: ошибка стадии, для
	// которой нет отдельного кода, в том числе отказ LatencyMonitor'а
	// по audio.ErrLatencyDrift (Session.ReadFrame).
	ErrUnknown ReceiverErrorCode = iota
	// ErrCodecInit — FEC- или payload-кодек не смог инициализироваться.
	ErrCodecInit
	// ErrUnknownPayloadType — PayloadType первого пакета сессии не
	// зарегистрирован в format.Map.
	ErrUnknownPayloadType
	// ErrSourceChanged — SSRC источника изменился в середине потока
	// (spec §12 Open Question: решено как фатальная ошибка сессии).
	ErrSourceChanged
	// ErrPayloadTypeChanged — PayloadType изменился в середине потока
	// (тот же Open Question, то же решение).
	ErrPayloadTypeChanged
	// ErrSequenceJump — скачок sequence number превысил
	// MaxSNJump.
	ErrSequenceJump
	// ErrTimestampJump — скачок RTP timestamp превысил MaxTSJump.
	ErrTimestampJump
	// ErrNoPlayback — Watchdog: длительная тишина.
	ErrNoPlayback
	// ErrBrokenPlayback — Watchdog: длительные разрывы.
	ErrBrokenPlayback
)

func (c ReceiverErrorCode) String() string {
	switch c {
	case ErrCodecInit:
		return "codec_init"
	case ErrUnknownPayloadType:
		return "unknown_payload_type"
	case ErrSourceChanged:
		return "source_changed"
	case ErrPayloadTypeChanged:
		return "payload_type_changed"
	case ErrSequenceJump:
		return "sequence_jump"
	case ErrTimestampJump:
		return "timestamp_jump"
	case ErrNoPlayback:
		return "no_playback"
	case ErrBrokenPlayback:
		return "broken_playback"
	default:
		return "unknown"
	}
}

// SessionError — терминальная ошибка сессии: код плюс, при наличии,
// исходная ошибка нижестоящей стадии (spec §7 "errors carry enough
// context to attribute the failure to a stage").
type SessionError struct {
	Code  ReceiverErrorCode
	Cause error
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pipeline: session failed (%s): %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("pipeline: session failed (%s)", e.Code)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}

func newSessionError(code ReceiverErrorCode, cause error) *SessionError {
	return &SessionError{Code: code, Cause: cause}
}

// classifyErrorCode extracts the ReceiverErrorCode from a Session's
// terminal error for metric labeling; a non-SessionError (should not
// happen in practice) is reported as ErrUnknown rather than panicking.
func classifyErrorCode(err error) ReceiverErrorCode {
	var serr *SessionError
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ErrUnknown
}
