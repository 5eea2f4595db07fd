package fec

import (
	"encoding/binary"
	"errors"

	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

// ErrShortHeader — payload короче фиксированного FEC-заголовка.
var ErrShortHeader = errors.New("fec: payload too short for header")

// headerLen — размер фиксированного заголовка, который FEC Reader
// ожидает найти в начале полезной нагрузки каждого source- и
// repair-пакета. Точная битовая раскладка FECFRAME вне области этой
// реализации (ядро видит FEC-координаты как непрозрачные, spec §4.6);
// эта раскладка — справочный, но самосогласованный формат, которого
// достаточно, чтобы Router, SortedQueue и Reader этого пакета
// работали сквозным образом.
//
//	offset 0: uint16 BlockSeq
//	offset 2: uint32 SourceBlockNumber
//	offset 6: uint16 SourceBlockLength (k)
//	offset 8: uint16 EncodingSymbolID
//	offset 10: uint8 IsRepair (0/1)
//	offset 11: uint16 RepairSymbolLength
//	offset 13: symbol payload
const headerLen = 13

// ParseHeader извлекает packet.FECHeader из начала payload пакета p и
// обрезает payload до тела символа, оставляя только данные, которые
// видит кодек. Не модифицирует p, если заголовок уже разобран.
func ParseHeader(p *packet.Packet) error {
	if p.FEC != nil {
		return nil
	}
	if p.RTP == nil || len(p.RTP.Payload) < headerLen {
		return ErrShortHeader
	}

	buf := p.RTP.Payload
	h := &packet.FECHeader{
		BlockSeq:           binary.BigEndian.Uint16(buf[0:2]),
		SourceBlockNumber:  binary.BigEndian.Uint32(buf[2:6]),
		SourceBlockLength:  binary.BigEndian.Uint16(buf[6:8]),
		EncodingSymbolID:   binary.BigEndian.Uint16(buf[8:10]),
		IsRepair:           buf[10] != 0,
		RepairSymbolLength: binary.BigEndian.Uint16(buf[11:13]),
	}
	p.FEC = h
	p.RTP.Payload = buf[headerLen:]
	if h.IsRepair {
		p.Flags |= packet.FlagRepair | packet.FlagFEC
	} else {
		p.Flags |= packet.FlagFEC
	}
	return nil
}
