package hsmsss

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the YAML shape of a connection config:
//
//	ip: 127.0.0.1
//	port: 5000
//	device: 0
//	mode: active
//	auto_linktest: true
//	timers:
//	  t3: 45s
//	  t5: 10s
//	  t6: 5s
//	  t7: 10s
//	  t8: 20s
//	  linktest: 10s
type fileConfig struct {
	IP           string     `yaml:"ip"`
	Port         int        `yaml:"port"`
	Device       *int       `yaml:"device"`
	Mode         string     `yaml:"mode"`
	AutoLinktest *bool      `yaml:"auto_linktest"`
	Timers       fileTimers `yaml:"timers"`
}

type fileTimers struct {
	T3       *duration `yaml:"t3"`
	T5       *duration `yaml:"t5"`
	T6       *duration `yaml:"t6"`
	T7       *duration `yaml:"t7"`
	T8       *duration `yaml:"t8"`
	LinkTest *duration `yaml:"linktest"`
}

// duration accepts a Go duration string ("1.5s", "200ms") or a plain number of seconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}

	if node.Tag == "!!int" || node.Tag == "!!float" {
		secs, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = duration(secs * float64(time.Second))

		return nil
	}

	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = duration(v)

	return nil
}

// LoadConfigFile reads a YAML connection config from path. See ParseConfig.
func LoadConfigFile(path string, opts ...ConnOption) (*ConnectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return ParseConfig(data, opts...)
}

// ParseConfig builds a ConnectionConfig from YAML data.
//
// Unknown keys are rejected. Keys that are absent keep their defaults, and the given opts
// are applied after the file values so they take precedence.
//
// Every error wraps ErrInvalidConfig.
func ParseConfig(data []byte, opts ...ConnOption) (*ConnectionConfig, error) {
	var fc fileConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty document")
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fileOpts, err := fc.options()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg, err := NewConnectionConfig(fc.IP, fc.Port, append(fileOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return cfg, nil
}

func (fc *fileConfig) options() ([]ConnOption, error) {
	opts := make([]ConnOption, 0, 10)

	switch strings.ToLower(fc.Mode) {
	case "", "active":
		opts = append(opts, WithActive())
	case "passive":
		opts = append(opts, WithPassive())
	default:
		return nil, fmt.Errorf("unknown mode %q, should be active or passive", fc.Mode)
	}

	if fc.Device != nil {
		if *fc.Device < 0 || *fc.Device > 0xFFFF {
			return nil, fmt.Errorf("device %d out of range [0, 65535]", *fc.Device)
		}
		opts = append(opts, WithDeviceID(uint16(*fc.Device)))
	}

	if fc.AutoLinktest != nil {
		opts = append(opts, WithAutoLinktest(*fc.AutoLinktest))
	}

	timerOpts := []struct {
		d   *duration
		opt func(time.Duration) ConnOption
	}{
		{fc.Timers.T3, WithT3Timeout},
		{fc.Timers.T5, WithT5Timeout},
		{fc.Timers.T6, WithT6Timeout},
		{fc.Timers.T7, WithT7Timeout},
		{fc.Timers.T8, WithT8Timeout},
		{fc.Timers.LinkTest, WithLinktestInterval},
	}
	for _, t := range timerOpts {
		if t.d != nil {
			opts = append(opts, t.opt(time.Duration(*t.d)))
		}
	}

	return opts, nil
}
