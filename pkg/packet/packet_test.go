package packet

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/29minhanh/roc-toolkit/pkg/format"
)

func mkPacket(seq uint16, ts uint32) *Packet {
	return New(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq, Timestamp: ts, PayloadType: 0, SSRC: 1}}, FlagAudio, nil, nil, nil)
}

func TestSortedQueueOrdersBySequence(t *testing.T) {
	q := NewSortedQueue(0)
	require.NoError(t, q.Write(mkPacket(5, 200)))
	require.NoError(t, q.Write(mkPacket(3, 0)))
	require.NoError(t, q.Write(mkPacket(4, 100)))

	var order []uint16
	for {
		p, err := q.Read()
		require.NoError(t, err)
		if p == nil {
			break
		}
		order = append(order, p.SeqNum())
	}
	require.Equal(t, []uint16{3, 4, 5}, order)
}

func TestSortedQueueDropsDuplicates(t *testing.T) {
	q := NewSortedQueue(0)
	require.NoError(t, q.Write(mkPacket(10, 0)))
	require.NoError(t, q.Write(mkPacket(10, 0)))

	p, err := q.Read()
	require.NoError(t, err)
	require.NotNil(t, p)

	p, err = q.Read()
	require.NoError(t, err)
	require.Nil(t, p)
	require.Equal(t, uint64(1), q.Dropped())
}

func TestSortedQueueDropsStaleAfterRead(t *testing.T) {
	q := NewSortedQueue(0)
	require.NoError(t, q.Write(mkPacket(10, 0)))
	_, err := q.Read()
	require.NoError(t, err)

	// Late arrival behind the already-delivered packet is stale.
	require.NoError(t, q.Write(mkPacket(9, 0)))
	require.Equal(t, uint64(1), q.Dropped())
	require.Equal(t, 0, q.Size())
}

func TestSortedQueueBoundedDropsOldest(t *testing.T) {
	q := NewSortedQueue(2)
	require.NoError(t, q.Write(mkPacket(1, 0)))
	require.NoError(t, q.Write(mkPacket(2, 0)))
	require.NoError(t, q.Write(mkPacket(3, 0)))

	require.Equal(t, 2, q.Size())
	p, _ := q.Read()
	require.Equal(t, uint16(2), p.SeqNum())
}

func TestSortedQueueWraparound(t *testing.T) {
	q := NewSortedQueue(0)
	require.NoError(t, q.Write(mkPacket(65534, 0)))
	require.NoError(t, q.Write(mkPacket(1, 0)))
	require.NoError(t, q.Write(mkPacket(65535, 0)))

	var order []uint16
	for {
		p, _ := q.Read()
		if p == nil {
			break
		}
		order = append(order, p.SeqNum())
	}
	require.Equal(t, []uint16{65534, 65535, 1}, order)
}

func TestRouterDispatchesByFlagMask(t *testing.T) {
	r := NewRouter()
	audioQueue := NewSortedQueue(0)
	repairQueue := NewSortedQueue(0)
	require.NoError(t, r.AddRoute(audioQueue, FlagAudio))
	require.NoError(t, r.AddRoute(repairQueue, FlagRepair))

	require.Error(t, r.AddRoute(audioQueue, FlagAudio))

	require.NoError(t, r.Write(mkPacket(1, 0)))
	require.Equal(t, 1, audioQueue.Size())
	require.Equal(t, 0, repairQueue.Size())

	unmatched := New(&rtp.Packet{Header: rtp.Header{SequenceNumber: 2}}, FlagFEC, nil, nil, nil)
	require.NoError(t, r.Write(unmatched))
	require.Equal(t, uint64(1), r.Dropped())
}

func TestDelayedReaderFillsThenDrains(t *testing.T) {
	var fed []*Packet
	feed := ReaderFunc(func() (*Packet, error) {
		if len(fed) == 0 {
			return nil, nil
		}
		p := fed[0]
		fed = fed[1:]
		return p, nil
	})

	dr := NewDelayedReader(feed, 800)

	fed = []*Packet{mkPacket(1, 0), mkPacket(2, 400), mkPacket(3, 800)}
	p, err := dr.Read()
	require.NoError(t, err)
	require.Nil(t, p, "must not emit anything before target latency is reached")
	require.False(t, dr.Draining())

	fed = []*Packet{mkPacket(4, 1200)}
	p, err = dr.Read()
	require.NoError(t, err)
	require.True(t, dr.Draining())
	require.NotNil(t, p)
	require.Equal(t, uint16(1), p.SeqNum(), "first drained packet must be the oldest buffered one")
}

func TestValidatorFailsOnSSRCChange(t *testing.T) {
	var fed []*Packet
	feed := ReaderFunc(func() (*Packet, error) {
		if len(fed) == 0 {
			return nil, nil
		}
		p := fed[0]
		fed = fed[1:]
		return p, nil
	})
	v := NewValidator(feed, ValidatorConfig{}, format.SampleSpec{SampleRate: 8000, ChannelMask: 1}, 0)

	p1 := &Packet{RTP: &rtp.Packet{Header: rtp.Header{SequenceNumber: 1, SSRC: 1, PayloadType: 0}}}
	p2 := &Packet{RTP: &rtp.Packet{Header: rtp.Header{SequenceNumber: 2, SSRC: 2, PayloadType: 0}}}

	fed = []*Packet{p1}
	_, err := v.Read()
	require.NoError(t, err)

	fed = []*Packet{p2}
	_, err = v.Read()
	require.ErrorIs(t, err, ErrBadSource)

	// terminally failed: further reads keep returning the same error.
	_, err = v.Read()
	require.ErrorIs(t, err, ErrBadSource)
}
