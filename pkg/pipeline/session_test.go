package pipeline

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"

	"github.com/29minhanh/roc-toolkit/pkg/fec"
	"github.com/29minhanh/roc-toolkit/pkg/format"
	"github.com/29minhanh/roc-toolkit/pkg/packet"
)

func testFormats() *format.Map {
	m := format.NewMap()
	spec := format.SampleSpec{SampleRate: 8000, ChannelMask: 0x1}
	m.Register(&format.Format{
		PayloadType: 0,
		Name:        "L16",
		SampleSpec:  spec,
		NewDecoder:  format.NewPCMDecoderFactory(spec),
	})
	return m
}

func mkAudioPacket(seq uint16, ts uint32, samples []int16) *packet.Packet {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		buf[i*2] = byte(uint16(s) >> 8)
		buf[i*2+1] = byte(uint16(s))
	}
	return packet.New(&rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Timestamp: ts, PayloadType: 0, SSRC: 42},
		Payload: buf,
	}, packet.FlagAudio, nil, nil, nil)
}

func TestSessionFailsOnUnknownPayloadType(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.PayloadType = 99
	s := NewSession(cfg, testFormats(), nil)

	require.False(t, s.Valid())
	var serr *SessionError
	require.ErrorAs(t, s.Err(), &serr)
	require.Equal(t, ErrUnknownPayloadType, serr.Code)
}

func TestSessionFailsWithUnavailableFECCodec(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.PayloadType = 0
	cfg.FEC = FECConfig{Enabled: true, K: 4, M: 2}
	s := NewSession(cfg, testFormats(), fec.NullCodec{})

	require.False(t, s.Valid())
	var serr *SessionError
	require.ErrorAs(t, s.Err(), &serr)
	require.Equal(t, ErrCodecInit, serr.Code)
}

func TestSessionDeliversFramesEndToEnd(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.PayloadType = 0
	cfg.TargetLatency = 0
	s := NewSession(cfg, testFormats(), nil)
	require.True(t, s.Valid())

	var ts uint32
	for i := uint16(1); i <= 20; i++ {
		require.NoError(t, s.Handle(mkAudioPacket(i, ts, []int16{int16(i), int16(i)})))
		ts += 2
	}

	var sawNonZero bool
	var out []int16
	for i := 0; i < 20; i++ {
		f, err := s.ReadFrame(2)
		require.NoError(t, err)
		require.NotNil(t, f)
		out = append(out, f.Samples...)
		for _, v := range f.Samples {
			if v != 0 {
				sawNonZero = true
			}
		}
	}
	require.True(t, sawNonZero, "the fed packet samples must eventually reach the output: %v", out)
}

func TestSessionFailsOnSourceChange(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.PayloadType = 0
	cfg.TargetLatency = 0
	s := NewSession(cfg, testFormats(), nil)
	require.True(t, s.Valid())

	p1 := mkAudioPacket(1, 0, []int16{1, 2})
	require.NoError(t, s.Handle(p1))

	p2 := mkAudioPacket(2, 2, []int16{3, 4})
	p2.RTP.SSRC = 99
	require.NoError(t, s.Handle(p2))

	var failedWith error
	for i := 0; i < 10 && failedWith == nil; i++ {
		_, err := s.ReadFrame(2)
		if err != nil {
			failedWith = err
		}
	}
	require.Error(t, failedWith)
	require.False(t, s.Valid())

	var serr *SessionError
	require.ErrorAs(t, failedWith, &serr)
	require.Equal(t, ErrSourceChanged, serr.Code)
}
