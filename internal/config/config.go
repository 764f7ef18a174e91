// Package config loads st2110go's session-profile configuration: the
// scheduler layout and the set of TX sessions to create at startup,
// read from a YAML file (spec.md §6 public API maps directly onto one
// profile entry per session).
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is the top-level config file shape.
type Profile struct {
	Schedulers []SchedulerConfig `yaml:"schedulers"`
	Sessions   []SessionConfig   `yaml:"sessions"`
}

// SchedulerConfig mirrors sched.Config's YAML-facing fields.
type SchedulerConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"` // "builder", "transmitter", "mixed"
	NbTasklets  int    `yaml:"nb_tasklets"`
	Socket      int    `yaml:"socket"`
	PinCore     bool   `yaml:"pin_core"`
	QuotaCapMbs int    `yaml:"quota_cap_mbs"`
}

// SessionConfig describes one TX session to build at startup.
type SessionConfig struct {
	Name        string      `yaml:"name"`
	Kind        string      `yaml:"kind"` // "st20", "st22", "st30", "st40", "st41"
	Scheduler   string      `yaml:"scheduler"`
	Destination Destination `yaml:"destination"`
	Redundant   *Destination `yaml:"redundant,omitempty"`
	PacingMode  string      `yaml:"pacing_mode,omitempty"` // "rl", "tsc", "tsc_narrow", "ptp", "best_effort"
	Flags       FlagList    `yaml:"flags,omitempty"`

	// RTCPListenPort, with the enable_rtcp flag set, opens the receive
	// half of the NACK round trip on that local UDP port (spec.md
	// §4.10). 0 leaves RTCP send-only (buffer armed, no RX queue).
	RTCPListenPort int `yaml:"rtcp_listen_port,omitempty"`

	Video *VideoParams `yaml:"video,omitempty"`
	Audio *AudioParams `yaml:"audio,omitempty"`
}

// Destination is a UDP endpoint, expressed either as "ip:port" shorthand
// or as an explicit mapping (the teacher's PathList pattern: support
// both a scalar and a struct form in the same YAML sequence/field).
type Destination struct {
	IP       string `yaml:"ip"`
	Port     int    `yaml:"port"`
	SrcPort  int    `yaml:"src_port,omitempty"`
	Interface string `yaml:"interface,omitempty"`
}

// UnmarshalYAML accepts either "ip:port" or a full mapping.
func (d *Destination) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		host, port, err := splitHostPort(value.Value)
		if err != nil {
			return fmt.Errorf("config: destination %q: %w", value.Value, err)
		}
		d.IP = host
		d.Port = port
		return nil
	}
	type plain Destination
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = Destination(p)
	return nil
}

func splitHostPort(s string) (string, int, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("missing port")
	}
	host := s[:idx]
	var port int
	if _, err := fmt.Sscanf(s[idx+1:], "%d", &port); err != nil {
		return "", 0, fmt.Errorf("bad port: %w", err)
	}
	return host, port, nil
}

// VideoParams configures an ST20/ST22 session.
type VideoParams struct {
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	FPSMul       int    `yaml:"fps_mul"`
	FPSDen       int    `yaml:"fps_den"`
	PixelFormat  string `yaml:"pixel_format"`
	Packing      string `yaml:"packing,omitempty"` // "bpm", "gpm_sl", "gpm"
	Interlaced   bool   `yaml:"interlaced,omitempty"`
}

// AudioParams configures an ST30 session.
type AudioParams struct {
	SampleRateHz int    `yaml:"sample_rate_hz"`
	Channels     int    `yaml:"channels"`
	Format       string `yaml:"format"`
	PacketTimeUS int    `yaml:"packet_time_us"`
}

// FlagList is a YAML sequence of TxFlag names, e.g. ["user_pacing",
// "exact_user_pacing"]. Unlike Destination it has no custom unmarshaler:
// only a sequence of strings is accepted, not a bare scalar.
type FlagList []string

// Load reads and parses a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &p, nil
}
