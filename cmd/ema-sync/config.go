package main

import (
	"os"
	"time"

	"github.com/jinzhu/copier"
	engine "github.com/koscakluka/ema-sync/core"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

type config struct {
	Session  sessionConfig  `yaml:"session"`
	Presence presenceConfig `yaml:"presence"`
	Audio    audioConfig    `yaml:"audio"`
	Engine   engineConfig   `yaml:"engine"`
	LogLevel string         `yaml:"log_level"`
	LogFile  string         `yaml:"log_file"`
}

type sessionConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	ID    string `yaml:"id"`
}

type presenceConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

type audioConfig struct {
	// Sink is one of none, malgo or portaudio.
	Sink       string `yaml:"sink"`
	SampleRate int    `yaml:"sample_rate"`
}

// engineConfig mirrors engine.Config. Fields left empty keep the engine
// defaults. Settings where zero is meaningful are pointers so an explicit
// zero in the file is told apart from an absent key; the booleans and
// store_capacity default to zero already.
type engineConfig struct {
	WindowSize                  *int          `yaml:"window_size"`
	MaxBubbles                  *int          `yaml:"max_bubbles"`
	BubbleDuration              time.Duration `yaml:"bubble_duration"`
	ReducedMotionBubbleDuration time.Duration `yaml:"reduced_motion_bubble_duration"`
	FadeInFraction              *float64      `yaml:"fade_in_fraction"`
	FadeOutStartFraction        *float64      `yaml:"fade_out_start_fraction"`
	BubbleTick                  time.Duration `yaml:"bubble_tick"`
	ReducedMotionBubbleTick     time.Duration `yaml:"reduced_motion_bubble_tick"`
	ReducedMotion               bool          `yaml:"reduced_motion"`
	PendingTimeout              time.Duration `yaml:"pending_timeout"`
	SessionScoped               bool          `yaml:"session_scoped"`
	StoreCapacity               int           `yaml:"store_capacity"`
}

var audioSinks = map[string]bool{"none": true, "malgo": true, "portaudio": true}

func defaultConfig() config {
	return config{
		Audio:    audioConfig{Sink: "malgo"},
		LogLevel: "info",
	}
}

// loadConfig reads path over the defaults. An empty path yields the
// defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return config{}, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return config{}, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if err := cfg.validate(); err != nil {
		return config{}, goerr.Wrap(err, "invalid config file", goerr.V("path", path))
	}
	return cfg, nil
}

func (c config) validate() error {
	if !audioSinks[c.Audio.Sink] {
		return goerr.New("unknown audio sink", goerr.V("sink", c.Audio.Sink))
	}
	for name, size := range map[string]*int{
		"window_size":    c.Engine.WindowSize,
		"max_bubbles":    c.Engine.MaxBubbles,
		"store_capacity": &c.Engine.StoreCapacity,
	} {
		if size != nil && *size < 0 {
			return goerr.New("size must not be negative", goerr.V(name, *size))
		}
	}
	for name, fraction := range map[string]*float64{
		"fade_in_fraction":        c.Engine.FadeInFraction,
		"fade_out_start_fraction": c.Engine.FadeOutStartFraction,
	} {
		if fraction != nil && (*fraction < 0 || *fraction > 1) {
			return goerr.New("fraction out of range", goerr.V(name, *fraction))
		}
	}
	return nil
}

// engineConfig overlays the configured engine settings on the defaults.
func (c config) engineConfig() (engine.Config, error) {
	merged := engine.DefaultConfig()
	if err := copier.CopyWithOption(&merged, &c.Engine, copier.Option{IgnoreEmpty: true}); err != nil {
		return engine.Config{}, goerr.Wrap(err, "failed to merge engine config")
	}

	// explicit zeros survive only through the pointer fields
	if c.Engine.WindowSize != nil {
		merged.WindowSize = *c.Engine.WindowSize
	}
	if c.Engine.MaxBubbles != nil {
		merged.MaxBubbles = *c.Engine.MaxBubbles
	}
	if c.Engine.FadeInFraction != nil {
		merged.FadeInFraction = *c.Engine.FadeInFraction
	}
	if c.Engine.FadeOutStartFraction != nil {
		merged.FadeOutStartFraction = *c.Engine.FadeOutStartFraction
	}
	return merged, nil
}
