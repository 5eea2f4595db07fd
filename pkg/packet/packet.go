// Package packet содержит пакетный домен приёмного конвейера:
// сам тип Packet, битовую маску возможностей, Router, SortedQueue,
// RTP Validator, RTP Populator и DelayedReader (spec §4.1–4.5).
//
// Все стадии этого пакета читаются в одном логическом контексте
// исполнения (драйвере сессии); ни одна стадия не блокируется и не
// захватывает мьютексы на горячем пути чтения. Запись в Router тоже
// не синхронизирована (см. Router.Write): пакеты из сетевого потока
// должны передаваться в этот контекст вызывающим кодом.
package packet

import (
	"net"
	"time"

	"github.com/pion/rtp"

	"github.com/29minhanh/roc-toolkit/pkg/bufpool"
)

// Flags — битовая маска возможностей пакета (spec §3).
type Flags uint32

const (
	FlagAudio Flags = 1 << iota
	FlagRepair
	FlagFEC
	FlagRTP
	FlagUDP
)

// Has сообщает, установлены ли все биты want в f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// FECHeader — координаты FEC-блока, извлечённые из заголовка
// source- или repair-объекта. Ядро трактует эти поля как непрозрачные
// координаты блока; тела символов разбирает кодек (spec §6).
type FECHeader struct {
	BlockSeq           uint16
	SourceBlockNumber  uint32
	SourceBlockLength  uint16
	EncodingSymbolID   uint16
	IsRepair           bool
	RepairSymbolLength uint16
}

// Packet — ref-counted запись, переносимая по пакетному домену.
// После разбора неизменяем, за исключением поздно связываемых
// разобранных представлений (FEC-заголовок заполняется парсером FEC,
// производные поля — RTP Populator'ом).
type Packet struct {
	Flags Flags

	// RTP — заголовок и полезная нагрузка в представлении pion/rtp;
	// используется тем же способом, каким его использует
	// github.com/arzzra/soft_phone/pkg/media/jitter_buffer.go
	// (прямой доступ к promoted-полям Header через встраивание).
	RTP *rtp.Packet

	FEC *FECHeader

	Src net.Addr
	Dst net.Addr

	// Производные поля, заполняемые Populator'ом (spec §4.4).
	Samples         []int16
	DecodedSamples  int
	CaptureTime     time.Time
	ChannelMask     uint32
	PopulatorFilled bool

	buf *bufpool.Buffer[byte]
}

// New строит Packet, чей payload владеет буфером buf. buf может быть
// nil для пакетов, которые никогда не выходят за пределы одного
// вызова (например, синтетических пакетов в тестах).
func New(rtpPacket *rtp.Packet, flags Flags, src, dst net.Addr, buf *bufpool.Buffer[byte]) *Packet {
	return &Packet{
		Flags: flags | FlagRTP,
		RTP:   rtpPacket,
		Src:   src,
		Dst:   dst,
		buf:   buf,
	}
}

// Release освобождает буфер полезной нагрузки в пул, если он есть.
// Вызывается стадией, которая является последним владельцем пакета
// (обычно Depacketizer после копирования сэмплов во внутреннее
// кольцо, или любая стадия, отбрасывающая пакет).
func (p *Packet) Release() {
	if p.buf != nil {
		p.buf.Release()
	}
}

// SeqNum — sequence number RTP-заголовка, для краткости.
func (p *Packet) SeqNum() uint16 {
	return p.RTP.SequenceNumber
}

// Timestamp — RTP timestamp заголовка, для краткости.
func (p *Packet) Timestamp() uint32 {
	return p.RTP.Timestamp
}

// SeqDiff возвращает модульную разницу a-b, интерпретированную как
// знаковое 16-битное число (spec §4.2: "разница интерпретируется как
// знаковое 16-битное число").
func SeqDiff(a, b uint16) int16 {
	return int16(a - b)
}

// SeqNewer сообщает, что a находится "позже" b по модульному
// сравнению 16-битного RTP sequence space.
func SeqNewer(a, b uint16) bool {
	return SeqDiff(a, b) > 0
}
