package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
receiver:
  internal_frame_length_samples: 10
  output_sample_rate: 44100
  output_channel_mask: 3
  sorted_queue_capacity: 256

formats:
  - payload_type: 0
    name: L16
    sample_rate: 44100
    channel_mask: 3

sessions:
  - payload_type: 0
    rtp_validator:
      max_sn_jump: 100
      max_ts_jump: 48000
    fec_reader:
      enabled: true
      k: 20
      m: 10
      max_sbn_jump: 3
      max_pending_blocks: 4
      samples_per_packet: 40
    watchdog:
      no_playback_timeout: 16000
      broken_playback_timeout: 16000
      frame_status_window: 32
      breakage_detection_threshold: 0.5
    latency_monitor:
      target_latency: 800
      scaling_tolerance: 400
      kp: 0.001
      ki: 0.0001
      epsilon: 0.05
      tick_interval_frames: 8
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "receiver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesFullDocument(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Formats, 1)
	require.Equal(t, "L16", f.Formats[0].Name)
	require.Len(t, f.Sessions, 1)
}

func TestReceiverConfigFillsInDefaultsForZeroFields(t *testing.T) {
	f, err := Load(writeTemp(t, `receiver: {}`))
	require.NoError(t, err)

	cfg := f.ReceiverConfig()
	require.NotZero(t, cfg.SamplesPerFrame)
	require.NotZero(t, cfg.OutputSampleRate)
	require.NotZero(t, cfg.SortedQueueCapacity)
}

func TestSessionConfigForAppliesExplicitOverrides(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	cfg := f.SessionConfigFor(0)
	require.Equal(t, uint8(0), cfg.PayloadType)
	require.EqualValues(t, 100, cfg.Validator.MaxSNJump)
	require.True(t, cfg.FEC.Enabled)
	require.Equal(t, 20, cfg.FEC.K)
	require.Equal(t, 10, cfg.FEC.M)
	require.EqualValues(t, 800, cfg.TargetLatency)
	require.EqualValues(t, 400, cfg.LatencyTolerance)
}

func TestSessionConfigForFallsBackToDefaultsForUnknownPayloadType(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	cfg := f.SessionConfigFor(7)
	require.Equal(t, uint8(7), cfg.PayloadType)
	require.False(t, cfg.FEC.Enabled)
}

func TestBuildFormatMapRegistersL16(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	m, err := f.BuildFormatMap()
	require.NoError(t, err)
	got := m.Format(0)
	require.NotNil(t, got)
	require.Equal(t, "L16", got.Name)
	require.NotNil(t, got.NewDecoder)
}

func TestBuildFormatMapRejectsUnknownCodecName(t *testing.T) {
	path := writeTemp(t, `
formats:
  - payload_type: 8
    name: PCMA
    sample_rate: 8000
    channel_mask: 1
`)
	f, err := Load(path)
	require.NoError(t, err)

	_, err = f.BuildFormatMap()
	require.Error(t, err)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
