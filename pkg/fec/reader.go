package fec

import (
	"net"

	"github.com/pion/rtp"

	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

// ReaderConfig задаёт фиксированные размеры блока и параметры
// отбрасывания устаревших блоков (spec §6 fec_reader: max_sbn_jump,
// max_pending_blocks).
type ReaderConfig struct {
	// K, M — фиксированные размеры блока: k source-символов,
	// m repair-символов (spec §4.6 "fixed (k,m) block dimensions").
	K, M int

	// MaxSBNJump — safety margin: если по source_block_number текущий
	// отслеживаемый блок отстаёт от самого свежего увиденного блока
	// более чем на это значение, он считается заброшенным.
	MaxSBNJump uint32

	// MaxPendingBlocks — верхняя граница числа одновременно
	// отслеживаемых блоков; превышение вытесняет самый старый блок,
	// обеспечивая ограниченность памяти O(окно × (k+m)) (spec §4.6
	// point 5).
	MaxPendingBlocks int

	// SamplesPerPacket — RTP-timestamp шаг между последовательными
	// source-пакетами; нужен только для восстановления timestamp'а
	// синтезированных пакетов при успешном repair.
	SamplesPerPacket uint32
}

type blockState struct {
	sbn     uint32
	k, m    int
	sources map[int]*packet.Packet
	repairs map[int]*packet.Packet
	block   Block

	// symbols counts every symbol ever ingested into this block,
	// independent of blk.sources/blk.repairs map occupancy — those
	// maps drop an entry as soon as its packet is handed to a caller
	// (see Read), so map length alone can no longer stand in for "how
	// many symbols has the codec seen" once repair readiness is
	// checked after some sources have already been emitted.
	symbols int

	// A synthesized (repaired) packet's RTP header/addresses are
	// interpolated from some other source symbol's fields. Since
	// blk.sources drops an entry once emitted, that source may no
	// longer be in the map by the time a later index is recovered —
	// so the first source symbol's fields are snapshotted here once,
	// independent of the map.
	haveTemplate   bool
	templateIdx    int
	templateHeader rtp.Header
	templateSrc    net.Addr
	templateDst    net.Addr
}

// Reader — FEC Reader (spec §4.6): пулит source- и repair-очереди,
// выравнивает по source_block_number и пытается восстановить
// отсутствующие source-пакеты кодеком, прежде чем сдаться и пропустить
// дыру, если блок признан заброшенным.
type Reader struct {
	source packet.Reader
	repair packet.Reader
	codec  Codec
	cfg    ReaderConfig

	valid bool

	blocks map[uint32]*blockState
	order  []uint32 // возрастающий порядок наблюдавшихся SBN

	haveCurrent bool
	currentSBN  uint32
	cursor      int

	maxSeenSBN  uint32
	haveMaxSeen bool
}

// NewReader создаёт FEC Reader. Если codec.NewBlock немедленно
// проваливается на пробном блоке (например, NullCodec, потому что
// схема не поддержана сборкой), Reader строится, но остаётся
// невалидным (Valid() == false) — spec §4.6 "codec init failure →
// stage enters invalid state at construction".
func NewReader(source, repair packet.Reader, codec Codec, cfg ReaderConfig) *Reader {
	r := &Reader{
		source: source,
		repair: repair,
		codec:  codec,
		cfg:    cfg,
		blocks: make(map[uint32]*blockState),
	}
	if _, err := codec.NewBlock(cfg.K, cfg.M); err == nil {
		r.valid = true
	}
	return r
}

// Valid сообщает, инициализировался ли кодек успешно.
func (r *Reader) Valid() bool {
	return r.valid
}

// Read реализует packet.Reader. Возвращает (nil, nil), когда ни один
// пакет не готов к выдаче прямо сейчас (ни устаревшая дыра, ни
// свежий пакет), без блокировки.
func (r *Reader) Read() (*packet.Packet, error) {
	if !r.valid {
		return nil, ErrCodecUnavailable
	}

	for {
		if err := r.drain(); err != nil {
			return nil, err
		}

		if !r.haveCurrent {
			sbn, ok := r.oldestPendingSBN()
			if !ok {
				return nil, nil
			}
			r.currentSBN = sbn
			r.haveCurrent = true
			r.cursor = 0
		}

		blk := r.blocks[r.currentSBN]
		if blk == nil {
			return nil, nil
		}

		if r.cursor >= blk.k {
			r.retire(r.currentSBN)
			continue
		}

		if sp, ok := blk.sources[r.cursor]; ok {
			delete(blk.sources, r.cursor)
			r.cursor++
			return sp, nil
		}

		if blk.symbols >= blk.k {
			if recovered, err := blk.block.TryRepair(); err == nil && recovered != nil {
				if data, ok := recovered[r.cursor]; ok {
					pkt := r.synthesize(blk, r.cursor, data)
					r.cursor++
					return pkt, nil
				}
			}
		}

		if r.abandoned(blk) {
			// Пропустить всё, что не удалось восстановить; нижестоящий
			// Depacketizer обнаружит разрыв по временным меткам, а не
			// по последовательным номерам (spec §4.7).
			for r.cursor < blk.k {
				if sp, ok := blk.sources[r.cursor]; ok {
					delete(blk.sources, r.cursor)
					r.cursor++
					return sp, nil
				}
				r.cursor++
			}
			r.retire(r.currentSBN)
			continue
		}

		return nil, nil
	}
}

func (r *Reader) drain() error {
	for {
		p, err := r.source.Read()
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		r.ingest(p, false)
	}
	for {
		p, err := r.repair.Read()
		if err != nil {
			return err
		}
		if p == nil {
			break
		}
		r.ingest(p, true)
	}
	return nil
}

func (r *Reader) ingest(p *packet.Packet, isRepair bool) {
	if p.FEC == nil {
		if err := ParseHeader(p); err != nil {
			p.Release()
			return
		}
	}

	sbn := p.FEC.SourceBlockNumber
	if !r.haveMaxSeen || sbn-r.maxSeenSBN < 1<<31 {
		r.maxSeenSBN = sbn
		r.haveMaxSeen = true
	}

	blk, ok := r.blocks[sbn]
	if !ok {
		block, err := r.codec.NewBlock(r.cfg.K, r.cfg.M)
		if err != nil {
			p.Release()
			return
		}
		blk = &blockState{
			sbn:     sbn,
			k:       r.cfg.K,
			m:       r.cfg.M,
			sources: make(map[int]*packet.Packet),
			repairs: make(map[int]*packet.Packet),
			block:   block,
		}
		r.blocks[sbn] = blk
		r.order = append(r.order, sbn)
		r.evictIfOverfull()
	}

	idx := int(p.FEC.EncodingSymbolID)
	if isRepair {
		idx += blk.k
		if old, ok := blk.repairs[int(p.FEC.EncodingSymbolID)]; ok {
			old.Release()
		}
		blk.repairs[int(p.FEC.EncodingSymbolID)] = p
	} else {
		if old, ok := blk.sources[idx]; ok {
			old.Release()
		}
		blk.sources[idx] = p
		if !blk.haveTemplate {
			blk.haveTemplate = true
			blk.templateIdx = idx
			blk.templateHeader = p.RTP.Header
			blk.templateSrc = p.Src
			blk.templateDst = p.Dst
		}
	}
	blk.symbols++
	_ = blk.block.AddSymbol(idx, p.RTP.Payload)
}

func (r *Reader) oldestPendingSBN() (uint32, bool) {
	if len(r.order) == 0 {
		return 0, false
	}
	return r.order[0], true
}

func (r *Reader) abandoned(blk *blockState) bool {
	if r.haveMaxSeen && r.maxSeenSBN-blk.sbn > r.cfg.MaxSBNJump {
		return true
	}
	if r.cfg.MaxPendingBlocks > 0 && len(r.blocks) > r.cfg.MaxPendingBlocks && r.order[0] == blk.sbn {
		return true
	}
	return false
}

// retire discards block bookkeeping once every index has been either
// delivered or given up on. Every source packet returned to a caller
// is removed from blk.sources at the point it is returned (see Read),
// so any entry still present here never left the Reader — including a
// source that arrived after its index was already passed by the
// abandon-skip cursor — and must be released here to avoid holding its
// pool reference forever.
func (r *Reader) retire(sbn uint32) {
	if blk, ok := r.blocks[sbn]; ok {
		for _, sp := range blk.sources {
			sp.Release()
		}
		for _, rp := range blk.repairs {
			rp.Release()
		}
	}
	delete(r.blocks, sbn)
	for i, s := range r.order {
		if s == sbn {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.haveCurrent = false
}

func (r *Reader) evictIfOverfull() {
	if r.cfg.MaxPendingBlocks <= 0 || len(r.order) <= r.cfg.MaxPendingBlocks {
		return
	}
	oldest := r.order[0]
	if blk, ok := r.blocks[oldest]; ok {
		for _, sp := range blk.sources {
			sp.Release()
		}
		for _, sp := range blk.repairs {
			sp.Release()
		}
	}
	delete(r.blocks, oldest)
	r.order = r.order[1:]
	if r.haveCurrent && r.currentSBN == oldest {
		r.haveCurrent = false
	}
}

// synthesize строит замену для восстановленного source-пакета: RTP
// заголовок клонируется от первого source-пакета, принятого в этот
// блок, и сдвигается на разницу позиций в блоке, полезная нагрузка —
// это data, восстановленные кодеком байты. Депакетизатор ниже по
// потоку не отличает восстановленный пакет от полученного по сети;
// RTP Populator, вызываемый после FEC Reader, декодирует его тем же
// decoder'ом, что и обычные source-пакеты (см. SPEC_FULL.md §11
// point 2 про порядок конструирования цепочки).
func (r *Reader) synthesize(blk *blockState, idx int, data []byte) *packet.Packet {
	if !blk.haveTemplate {
		return nil
	}

	delta := int32(idx - blk.templateIdx)
	header := blk.templateHeader
	header.SequenceNumber = uint16(int32(header.SequenceNumber) + delta)
	header.Timestamp = uint32(int32(header.Timestamp) + delta*int32(r.cfg.SamplesPerPacket))

	rtpPkt := &rtp.Packet{Header: header, Payload: data}
	return packet.New(rtpPkt, packet.FlagAudio, blk.templateSrc, blk.templateDst, nil)
}
