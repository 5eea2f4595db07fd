package packet

import "errors"

// Ошибки пакетного домена, помечающие стадию как терминально
// отказавшую (spec §7 "stream-fatal"). После такой ошибки Read
// должен продолжать возвращать её же на каждый последующий вызов —
// внешняя Session наблюдает это через advance() и завершает сессию.
var (
	// ErrBadSource — SSRC потока сменился (spec §4.3).
	ErrBadSource = errors.New("packet: rtp ssrc changed mid-stream")

	// ErrBadPayloadType — payload type сменился mid-stream. Решение
	// открытого вопроса spec §9: такая смена трактуется как
	// stream-fatal, без пути восстановления.
	ErrBadPayloadType = errors.New("packet: rtp payload type changed mid-stream")

	// ErrSeqJump — разрыв sequence number превысил MaxSNJump.
	ErrSeqJump = errors.New("packet: sequence number jump exceeds configured limit")

	// ErrTimestampJump — разрыв timestamp превысил MaxTSJump.
	ErrTimestampJump = errors.New("packet: rtp timestamp jump exceeds configured limit")
)
