// Package config loads a receiver's configuration from a YAML file at
// startup (spec.md AMBIENT STACK: "a real deployment loads it from a
// file rather than hand-building the struct in code"). It is
// configuration-at-rest, not CLI argument parsing — flags remain out
// of scope per spec.md §1.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/29minhanh/roc-toolkit/pkg/format"
	"github.com/29minhanh/roc-toolkit/pkg/pipeline"
)

// FormatEntry describes one payload-type → codec binding from the
// `formats:` list (spec.md §6 "payload_type: u7 — RTP payload type
// selecting a Format"). Name is matched against the small built-in
// PCM codec registry in pkg/format/pcm.go; unknown names are a load
// error rather than a silently-skipped format, since a session bound
// to a missing format would otherwise fail confusingly at first
// packet instead of at startup.
type FormatEntry struct {
	PayloadType uint8  `yaml:"payload_type"`
	Name        string `yaml:"name"`
	SampleRate  uint32 `yaml:"sample_rate"`
	ChannelMask uint32 `yaml:"channel_mask"`
}

// ValidatorSection mirrors pipeline.ValidatorConfig field-for-field
// under the `rtp_validator:` key (spec.md §6).
type ValidatorSection struct {
	MaxSNJump uint16 `yaml:"max_sn_jump"`
	MaxTSJump uint32 `yaml:"max_ts_jump"`
}

// FECSection mirrors pipeline.FECConfig under the `fec_reader:` key.
type FECSection struct {
	Enabled          bool   `yaml:"enabled"`
	K                int    `yaml:"k"`
	M                int    `yaml:"m"`
	MaxSBNJump       uint32 `yaml:"max_sbn_jump"`
	MaxPendingBlocks int    `yaml:"max_pending_blocks"`
	SamplesPerPacket uint32 `yaml:"samples_per_packet"`
}

// WatchdogSection mirrors pipeline.WatchdogConfig under `watchdog:`.
type WatchdogSection struct {
	NoPlaybackTimeout     uint32  `yaml:"no_playback_timeout"`
	BrokenPlaybackTimeout uint32  `yaml:"broken_playback_timeout"`
	FrameStatusWindow     int     `yaml:"frame_status_window"`
	BreakageThreshold     float64 `yaml:"breakage_detection_threshold"`
}

// LatencyMonitorSection mirrors pipeline.LatencyConfig under
// `latency_monitor:`, plus the target/tolerance pair that spec.md §6
// keeps at the top level of the session configuration rather than
// inside the controller's own block.
type LatencyMonitorSection struct {
	TargetLatency      uint32  `yaml:"target_latency"`
	LatencyTolerance   uint32  `yaml:"scaling_tolerance"`
	Kp                 float64 `yaml:"kp"`
	Ki                 float64 `yaml:"ki"`
	Epsilon            float64 `yaml:"epsilon"`
	TickIntervalFrames int     `yaml:"tick_interval_frames"`
}

// SessionSection is the per-source-format configuration a
// SessionFactory picks from once it knows the incoming payload type
// (spec.md §6 "Session configuration").
type SessionSection struct {
	PayloadType    uint8                 `yaml:"payload_type"`
	Validator      ValidatorSection      `yaml:"rtp_validator"`
	FEC            FECSection            `yaml:"fec_reader"`
	Watchdog       WatchdogSection       `yaml:"watchdog"`
	LatencyMonitor LatencyMonitorSection `yaml:"latency_monitor"`
	Poisoning      bool                  `yaml:"poisoning"`
}

// ReceiverSection mirrors pipeline.ReceiverConfig under `receiver:`
// (spec.md §6 "Common configuration").
type ReceiverSection struct {
	SamplesPerFrame     int    `yaml:"internal_frame_length_samples"`
	OutputSampleRate    uint32 `yaml:"output_sample_rate"`
	OutputChannelMask   uint32 `yaml:"output_channel_mask"`
	SortedQueueCapacity int    `yaml:"sorted_queue_capacity"`
	Beeping             bool   `yaml:"beeping"`
}

// File is the root document unmarshaled from a receiver's YAML
// configuration file.
type File struct {
	Receiver ReceiverSection  `yaml:"receiver"`
	Formats  []FormatEntry    `yaml:"formats"`
	Sessions []SessionSection `yaml:"sessions"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}

// BuildFormatMap registers a format.Map from the file's `formats:`
// list. Only the "L16" name resolves to a real decoder (spec.md §1
// puts concrete payload codecs out of scope beyond the reference PCM
// one); any other name is a load error rather than a silently
// undecodable format, so a typo surfaces at startup instead of at the
// first packet from that payload type.
func (f *File) BuildFormatMap() (*format.Map, error) {
	m := format.NewMap()
	for _, entry := range f.Formats {
		spec := format.SampleSpec{SampleRate: entry.SampleRate, ChannelMask: entry.ChannelMask}
		switch entry.Name {
		case "L16":
			m.Register(&format.Format{
				PayloadType: entry.PayloadType,
				Name:        entry.Name,
				SampleSpec:  spec,
				NewDecoder:  format.NewPCMDecoderFactory(spec),
			})
		default:
			return nil, fmt.Errorf("config: unsupported format %q for payload type %d", entry.Name, entry.PayloadType)
		}
	}
	return m, nil
}

// ReceiverConfig converts the file's `receiver:` section into a
// pipeline.ReceiverConfig, falling back to pipeline.DefaultReceiverConfig
// field-by-field for anything left at its YAML zero value. The
// `beeping` key is parsed but not carried over: pipeline.ReceiverConfig
// has no field for it.
func (f *File) ReceiverConfig() pipeline.ReceiverConfig {
	def := pipeline.DefaultReceiverConfig()
	cfg := pipeline.ReceiverConfig{
		SamplesPerFrame:     f.Receiver.SamplesPerFrame,
		OutputSampleRate:    f.Receiver.OutputSampleRate,
		OutputChannels:      f.Receiver.OutputChannelMask,
		SortedQueueCapacity: f.Receiver.SortedQueueCapacity,
	}
	if cfg.SamplesPerFrame == 0 {
		cfg.SamplesPerFrame = def.SamplesPerFrame
	}
	if cfg.OutputSampleRate == 0 {
		cfg.OutputSampleRate = def.OutputSampleRate
	}
	if cfg.OutputChannels == 0 {
		cfg.OutputChannels = def.OutputChannels
	}
	if cfg.SortedQueueCapacity == 0 {
		cfg.SortedQueueCapacity = def.SortedQueueCapacity
	}
	return cfg
}

// SessionConfigFor returns the pipeline.SessionConfig configured for
// payloadType, or DefaultSessionConfig with PayloadType set if the
// file names no explicit `sessions:` entry for it — matching the
// teacher's own "structs with sane defaults" configuration idiom
// rather than making an unconfigured payload type a load error.
func (f *File) SessionConfigFor(payloadType uint8) pipeline.SessionConfig {
	for _, s := range f.Sessions {
		if s.PayloadType != payloadType {
			continue
		}
		cfg := pipeline.DefaultSessionConfig()
		cfg.PayloadType = payloadType
		cfg.PoisonEnabled = s.Poisoning
		if s.Validator != (ValidatorSection{}) {
			cfg.Validator = pipeline.ValidatorConfig{
				MaxSNJump: s.Validator.MaxSNJump,
				MaxTSJump: s.Validator.MaxTSJump,
			}
		}
		cfg.FEC = pipeline.FECConfig{
			Enabled:          s.FEC.Enabled,
			K:                s.FEC.K,
			M:                s.FEC.M,
			MaxSBNJump:       s.FEC.MaxSBNJump,
			MaxPendingBlocks: s.FEC.MaxPendingBlocks,
			SamplesPerPacket: s.FEC.SamplesPerPacket,
		}
		if s.Watchdog != (WatchdogSection{}) {
			cfg.Watchdog = pipeline.WatchdogConfig{
				NoPlaybackTimeout:     s.Watchdog.NoPlaybackTimeout,
				BrokenPlaybackTimeout: s.Watchdog.BrokenPlaybackTimeout,
				FrameStatusWindow:     s.Watchdog.FrameStatusWindow,
				BreakageThreshold:     s.Watchdog.BreakageThreshold,
			}
		}
		if s.LatencyMonitor.TargetLatency != 0 {
			cfg.TargetLatency = s.LatencyMonitor.TargetLatency
		}
		if s.LatencyMonitor.LatencyTolerance != 0 {
			cfg.LatencyTolerance = s.LatencyMonitor.LatencyTolerance
		}
		if s.LatencyMonitor.Kp != 0 || s.LatencyMonitor.Ki != 0 || s.LatencyMonitor.Epsilon != 0 {
			cfg.Latency.Kp = s.LatencyMonitor.Kp
			cfg.Latency.Ki = s.LatencyMonitor.Ki
			cfg.Latency.Epsilon = s.LatencyMonitor.Epsilon
		}
		if s.LatencyMonitor.TickIntervalFrames != 0 {
			cfg.Latency.TickIntervalFrames = s.LatencyMonitor.TickIntervalFrames
		}
		return cfg
	}
	cfg := pipeline.DefaultSessionConfig()
	cfg.PayloadType = payloadType
	return cfg
}
