// Package config provides configuration management for the lip sync pipeline
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/avneetpandey82/Lip-Sync/internal/audio"
	"github.com/avneetpandey82/Lip-Sync/internal/avatar3d"
	"github.com/avneetpandey82/Lip-Sync/internal/logging"
	"github.com/avneetpandey82/Lip-Sync/internal/refine"
	"github.com/avneetpandey82/Lip-Sync/internal/timeline"
)

// EnvPrefix prefixes environment overrides, e.g. LIPSYNC_PLAYBACK_FPS.
const EnvPrefix = "LIPSYNC"

// Config holds all pipeline configuration
type Config struct {
	Allocator     timeline.Params     `mapstructure:"allocator"`
	Envelope      EnvelopeConfig      `mapstructure:"envelope"`
	Playback      PlaybackConfig      `mapstructure:"playback"`
	Refine        RefineConfig        `mapstructure:"refine"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Pronunciation PronunciationConfig `mapstructure:"pronunciation"`
	Logging       logging.Config      `mapstructure:"logging"`
}

// EnvelopeConfig configures amplitude extraction
type EnvelopeConfig struct {
	FrameRate int `mapstructure:"frame_rate"` // envelope frames per second
}

// PlaybackConfig configures the render loop and audio playout
type PlaybackConfig struct {
	FPS        int             `mapstructure:"fps"`
	SampleRate int             `mapstructure:"sample_rate"`
	Buffer     time.Duration   `mapstructure:"buffer"` // playout capacity
	Driver     avatar3d.Params `mapstructure:"driver"`
}

// RefineConfig configures the optional high-accuracy refinement
type RefineConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	MinCoverage float64           `mapstructure:"min_coverage"`
	CacheSize   int               `mapstructure:"cache_size"`
	Tool        refine.ToolConfig `mapstructure:"tool"`
}

// StreamConfig configures the renderer feed
type StreamConfig struct {
	Addr       string `mapstructure:"addr"`
	Path       string `mapstructure:"path"`
	SendBuffer int    `mapstructure:"send_buffer"` // frames queued per client before dropping
}

// PronunciationConfig points at an optional YAML word overlay
type PronunciationConfig struct {
	Overlay string `mapstructure:"overlay"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Allocator: timeline.DefaultParams(),
		Envelope: EnvelopeConfig{
			FrameRate: audio.DefaultFrameRate,
		},
		Playback: PlaybackConfig{
			FPS:        60,
			SampleRate: audio.DefaultSampleRate,
			Buffer:     2 * time.Second,
			Driver:     avatar3d.DefaultParams(),
		},
		Refine: RefineConfig{
			Enabled:     false,
			MinCoverage: refine.DefaultMinCoverage,
			CacheSize:   refine.DefaultCacheSize,
			Tool: refine.ToolConfig{
				Binary:         "rhubarb",
				Timeout:        refine.DefaultTimeout,
				ExtendedShapes: "GHX",
			},
		},
		Stream: StreamConfig{
			Addr:       "127.0.0.1:8765",
			Path:       "/ws",
			SendBuffer: 32,
		},
		Logging: logging.Config{
			Level:      logging.LevelInfo,
			MaxHistory: 500,
			Console:    true,
		},
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Playback.FPS <= 0 {
		errs = append(errs, fmt.Errorf("playback.fps must be positive, got %d", c.Playback.FPS))
	}
	if c.Playback.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("playback.sample_rate must be positive, got %d", c.Playback.SampleRate))
	}
	if c.Envelope.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("envelope.frame_rate must be positive, got %d", c.Envelope.FrameRate))
	}
	if c.Refine.MinCoverage <= 0 || c.Refine.MinCoverage > 1 {
		errs = append(errs, fmt.Errorf("refine.min_coverage must be in (0,1], got %v", c.Refine.MinCoverage))
	}
	if c.Stream.SendBuffer < 0 {
		errs = append(errs, fmt.Errorf("stream.send_buffer must not be negative, got %d", c.Stream.SendBuffer))
	}
	return errors.Join(errs...)
}

// Dir returns ~/.lipsync
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".lipsync"), nil
}

// Store owns a viper instance and the last successfully decoded Config.
type Store struct {
	v *viper.Viper

	mu  sync.RWMutex
	cfg *Config
}

// New reads configuration from path (or lipsync.yaml in ~/.lipsync and the
// working directory when path is empty) and the environment. A missing
// default file is not an error; a missing explicit path is.
func New(path string) (*Store, error) {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(*DefaultConfig()))

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lipsync")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Store{v: v, cfg: cfg}, nil
}

// Load is New followed by Config.
func Load(path string) (*Config, error) {
	s, err := New(path)
	if err != nil {
		return nil, err
	}
	return s.Config(), nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Config returns a copy of the current configuration.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.cfg
	return &c
}

// File returns the config file in use, or "" when running on defaults.
func (s *Store) File() string {
	return s.v.ConfigFileUsed()
}

// Watch re-reads the file whenever it changes and hands the new config to
// fn. A change that fails to decode or validate is passed as err and the
// previous config is kept.
func (s *Store) Watch(fn func(cfg *Config, err error)) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(s.v)
		if err != nil {
			fn(nil, err)
			return
		}
		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()
		fn(s.Config(), nil)
	})
	s.v.WatchConfig()
}

// Save writes the store's current settings to path as YAML.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return s.v.WriteConfigAs(path)
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(*cfg))
	v.SetConfigType("yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// setDefaults registers every mapstructure-tagged leaf of val under its dotted
// key. Viper only applies env overrides to keys it already knows about.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" || !f.IsExported() {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		fv := val.Field(i)
		switch {
		case f.Type == reflect.TypeOf(time.Duration(0)):
			v.SetDefault(key, time.Duration(fv.Int()).String())
		case fv.Kind() == reflect.Struct:
			setDefaults(v, key, fv)
		default:
			v.SetDefault(key, fv.Interface())
		}
	}
}
