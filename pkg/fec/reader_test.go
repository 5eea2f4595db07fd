package fec

import (
	"encoding/binary"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/29minhanh/roc-toolkit/pkg/bufpool"
	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

func mkSymbol(sbn uint32, esi uint16, isRepair bool, k, seq uint16, ts uint32, payload []byte) *packet.Packet {
	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], 0)
	binary.BigEndian.PutUint32(buf[2:6], sbn)
	binary.BigEndian.PutUint16(buf[6:8], k)
	binary.BigEndian.PutUint16(buf[8:10], esi)
	if isRepair {
		buf[10] = 1
	}
	binary.BigEndian.PutUint16(buf[11:13], 0)
	copy(buf[headerLen:], payload)

	return packet.New(&rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Timestamp: ts},
		Payload: buf,
	}, packet.FlagAudio, nil, nil, nil)
}

func feedOf(pkts ...*packet.Packet) packet.Reader {
	i := 0
	return packet.ReaderFunc(func() (*packet.Packet, error) {
		if i >= len(pkts) {
			return nil, nil
		}
		p := pkts[i]
		i++
		return p, nil
	})
}

func TestReaderPassesThroughCompleteBlock(t *testing.T) {
	src := feedOf(
		mkSymbol(1, 0, false, 3, 100, 0, []byte{1}),
		mkSymbol(1, 1, false, 3, 101, 10, []byte{2}),
		mkSymbol(1, 2, false, 3, 102, 20, []byte{3}),
	)
	rep := feedOf()

	r := NewReader(src, rep, XORCodec{}, ReaderConfig{K: 3, M: 1, MaxSBNJump: 4, MaxPendingBlocks: 8})
	require.True(t, r.Valid())

	var seqs []uint16
	for {
		p, err := r.Read()
		require.NoError(t, err)
		if p == nil {
			break
		}
		seqs = append(seqs, p.SeqNum())
	}
	require.Equal(t, []uint16{100, 101, 102}, seqs)
}

func TestReaderRepairsSingleLoss(t *testing.T) {
	// Repair symbol is the XOR of the three source payloads.
	a, b, c := byte(0x11), byte(0x22), byte(0x33)
	repairPayload := []byte{a ^ b ^ c}

	src := feedOf(
		mkSymbol(1, 0, false, 3, 100, 0, []byte{a}),
		// index 1 (seq 101) lost
		mkSymbol(1, 2, false, 3, 102, 20, []byte{c}),
	)
	rep := feedOf(mkSymbol(1, 0, true, 3, 0, 0, repairPayload))

	r := NewReader(src, rep, XORCodec{}, ReaderConfig{K: 3, M: 1, MaxSBNJump: 4, MaxPendingBlocks: 8, SamplesPerPacket: 10})
	require.True(t, r.Valid())

	p1, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p1)
	require.Equal(t, uint16(100), p1.SeqNum())

	p2, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p2, "the repaired symbol must be delivered once enough symbols are present")
	require.Equal(t, []byte{b}, p2.RTP.Payload)

	p3, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p3)
	require.Equal(t, uint16(102), p3.SeqNum())
}

func TestReaderAbandonsBlockOnSBNJump(t *testing.T) {
	src := feedOf(
		mkSymbol(1, 0, false, 2, 100, 0, []byte{1}),
		// index 1 of block 1 never arrives
		mkSymbol(5, 0, false, 2, 200, 0, []byte{9}),
		mkSymbol(5, 1, false, 2, 201, 10, []byte{10}),
	)
	rep := feedOf()

	r := NewReader(src, rep, XORCodec{}, ReaderConfig{K: 2, M: 1, MaxSBNJump: 1, MaxPendingBlocks: 8})

	p1, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(100), p1.SeqNum())

	// Block 1 is now abandoned because block 5 is far ahead; the
	// missing index 1 is skipped without ever being delivered.
	p2, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p2)
	require.Equal(t, uint16(200), p2.SeqNum())
}

// stepFeed lets a test control exactly when each packet becomes
// visible to Reader.drain(), unlike feedOf, which hands its whole
// backlog to the first drain() that asks.
type stepFeed struct {
	pending []*packet.Packet
}

func (f *stepFeed) push(p *packet.Packet) { f.pending = append(f.pending, p) }

func (f *stepFeed) Read() (*packet.Packet, error) {
	if len(f.pending) == 0 {
		return nil, nil
	}
	p := f.pending[0]
	f.pending = f.pending[1:]
	return p, nil
}

func mkPooledSymbol(pool *bufpool.Pool[byte], sbn uint32, esi uint16, isRepair bool, k, seq uint16, ts uint32, payload []byte) *packet.Packet {
	buf := pool.NewBuffer(headerLen + len(payload))
	bs := buf.Bytes()
	binary.BigEndian.PutUint16(bs[0:2], 0)
	binary.BigEndian.PutUint32(bs[2:6], sbn)
	binary.BigEndian.PutUint16(bs[6:8], k)
	binary.BigEndian.PutUint16(bs[8:10], esi)
	if isRepair {
		bs[10] = 1
	}
	binary.BigEndian.PutUint16(bs[11:13], 0)
	copy(bs[headerLen:], payload)

	return packet.New(&rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Timestamp: ts},
		Payload: bs,
	}, packet.FlagAudio, nil, nil, buf)
}

func TestReaderRetireReleasesSourceOrphanedByRepairedIndex(t *testing.T) {
	// index0, index2 delivered; index1 lost and recovered from the
	// repair symbol, so blk.sources never gets an entry for index1 and
	// the cursor moves past it. index1's real packet then arrives late
	// (e.g. reordered on the wire) after the cursor has already passed
	// it — nothing will ever consume it from blk.sources again, so
	// retire() must release it explicitly when the block completes.
	pool := bufpool.NewPool[byte](false)
	size := headerLen + 1
	a, b, c := byte(0x11), byte(0x22), byte(0x33)
	repairPayload := []byte{a ^ b ^ c}

	// Allocate every packet up front so none of the pool buffers this
	// test tracks get transparently recycled into each other before
	// the final free-list count is taken.
	index0Pkt := mkPooledSymbol(pool, 1, 0, false, 3, 100, 0, []byte{a})
	index2Pkt := mkPooledSymbol(pool, 1, 2, false, 3, 102, 20, []byte{c})
	repairPkt := mkPooledSymbol(pool, 1, 0, true, 3, 0, 0, repairPayload)
	strayIndex1Pkt := mkPooledSymbol(pool, 1, 1, false, 3, 101, 10, []byte{b})

	src := &stepFeed{}
	rep := &stepFeed{}
	r := NewReader(src, rep, XORCodec{}, ReaderConfig{K: 3, M: 1, MaxSBNJump: 4, MaxPendingBlocks: 8, SamplesPerPacket: 10})
	require.True(t, r.Valid())

	src.push(index0Pkt)
	src.push(index2Pkt)
	rep.push(repairPkt)

	p1, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(100), p1.SeqNum())
	p1.Release()

	p2, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p2, "index1 must be recovered from the repair symbol")
	require.Equal(t, []byte{b}, p2.RTP.Payload)
	p2.Release()

	// index1's real packet arrives after the recovered value already
	// took its place in the read order.
	src.push(strayIndex1Pkt)

	p3, err := r.Read()
	require.NoError(t, err)
	require.NotNil(t, p3)
	require.Equal(t, uint16(102), p3.SeqNum())
	p3.Release()

	// The block retires on this call: cursor reaches k, and the
	// stray index1 packet ingested above must have been released by
	// retire(), not left dangling in the deleted map.
	_, err = r.Read()
	require.NoError(t, err)

	require.Equal(t, 4, pool.FreeCount(size), "every pool buffer (index0, index2, the repair symbol, and the stray index1) must have returned to the free list")
}

func TestReaderIngestReleasesOverwrittenDuplicateSource(t *testing.T) {
	pool := bufpool.NewPool[byte](false)
	size := headerLen + 1
	src := &stepFeed{}
	rep := &stepFeed{}
	r := NewReader(src, rep, XORCodec{}, ReaderConfig{K: 2, M: 1, MaxSBNJump: 4, MaxPendingBlocks: 8})
	require.True(t, r.Valid())

	src.push(mkPooledSymbol(pool, 1, 0, false, 2, 100, 0, []byte{1}))
	src.push(mkPooledSymbol(pool, 1, 0, false, 2, 100, 0, []byte{1})) // retransmit duplicate
	src.push(mkPooledSymbol(pool, 1, 1, false, 2, 101, 10, []byte{2}))

	p1, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(100), p1.SeqNum())
	p1.Release()

	p2, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, uint16(101), p2.SeqNum())
	p2.Release()

	_, err = r.Read()
	require.NoError(t, err)

	require.Equal(t, 3, pool.FreeCount(size), "the first index0 packet, its duplicate, and index1 must all have returned to the free list")
}

func TestReaderInvalidWithUnavailableCodec(t *testing.T) {
	r := NewReader(feedOf(), feedOf(), NullCodec{}, ReaderConfig{K: 3, M: 1})
	require.False(t, r.Valid())

	_, err := r.Read()
	require.ErrorIs(t, err, ErrCodecUnavailable)
}
