package main

import (
	"path/filepath"
	"strings"

	"github.com/creasty/defaults"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shamspias/squeeze"
)

// Config is the CLI configuration. Values come from flags, SQUEEZE_* env
// vars and an optional config file, in that order of precedence.
//
// Quality has its default on the flag rather than a default tag: zero is a
// valid quality and must survive defaults.Set.
type Config struct {
	TargetSize string  `mapstructure:"target-size"`
	Quality    float64 `mapstructure:"quality" validate:"gte=0,lte=1"`
	Format     string  `mapstructure:"format" default:"same" validate:"oneof=same jpeg jpg webp png"`
	Resample   string  `mapstructure:"resample" default:"high-quality" validate:"oneof=high-quality fast nearest-exact"`
	MaxWidth   int     `mapstructure:"max-width" validate:"gte=0"`
	MaxHeight  int     `mapstructure:"max-height" validate:"gte=0"`
	OutDir     string  `mapstructure:"out-dir"`
	Suffix     string  `mapstructure:"suffix" default:"_squeezed"`
	Workers    int     `mapstructure:"workers" default:"3" validate:"gte=1,lte=64"`
	Margin     float64 `mapstructure:"margin" default:"0.9" validate:"gt=0,lte=1"`
	Iterations int     `mapstructure:"iterations" default:"10" validate:"gte=1,lte=32"`
	NoOrient   bool    `mapstructure:"no-orient"`
	LogLevel   string  `mapstructure:"log-level" default:"info" validate:"oneof=debug info warn error"`
	ConfigFile string  `mapstructure:"config"`
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("squeeze", pflag.ContinueOnError)
	fs.String("target-size", "", "Target file size, e.g. 100KB or 2MiB (empty = fixed quality)")
	fs.Float64("quality", squeeze.DefaultQuality, "Fixed quality 0.0-1.0 when no target size is given")
	fs.String("format", "", "Output format: same|jpeg|webp|png (default same)")
	fs.String("resample", "", "Resample method for max-width/height: high-quality|fast|nearest-exact")
	fs.Int("max-width", 0, "Maximum width (0 = no limit)")
	fs.Int("max-height", 0, "Maximum height (0 = no limit)")
	fs.String("out-dir", "", "Output directory (default: next to the input)")
	fs.String("suffix", "", "Suffix added to output file names (default _squeezed)")
	fs.Int("workers", 0, "Concurrent compressions (default 3)")
	fs.Float64("margin", 0, "Safety margin for the downscale fallback (default 0.9)")
	fs.Int("iterations", 0, "Binary search iterations (default 10)")
	fs.Bool("no-orient", false, "Do not apply EXIF orientation")
	fs.String("log-level", "", "Log level: debug|info|warn|error (default info)")
	fs.String("config", "", "Optional config file (yaml, json or toml)")
	return fs
}

// loadConfig parses args and returns the validated config and positional
// arguments.
func loadConfig(args []string) (*Config, []string, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("SQUEEZE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, nil, errors.Wrap(err, "bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, errors.Wrapf(err, "read config %q", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, errors.Wrap(err, "unmarshal config")
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, nil, errors.Wrap(err, "apply defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, nil, errors.Wrap(err, "invalid config")
	}
	if _, err := cfg.targetBytes(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// targetBytes parses TargetSize. An empty value means no target.
func (c *Config) targetBytes() (int, error) {
	if strings.TrimSpace(c.TargetSize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.TargetSize)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid target-size %q", c.TargetSize)
	}
	if n == 0 {
		return 0, errors.Errorf("invalid target-size %q: must be positive", c.TargetSize)
	}
	return int(n), nil
}

// options builds the library options for one input file.
func (c *Config) options(input string, log *zap.Logger) (squeeze.Options, error) {
	target, err := c.targetBytes()
	if err != nil {
		return squeeze.Options{}, err
	}
	method, err := squeeze.ParseResampleMethod(c.Resample)
	if err != nil {
		return squeeze.Options{}, err
	}

	opts := squeeze.DefaultOptions()
	opts.Format = c.outputFormat(input)
	opts.TargetSize = target
	opts.Quality = c.Quality
	opts.Resample = method
	opts.MaxWidth = c.MaxWidth
	opts.MaxHeight = c.MaxHeight
	opts.AutoOrient = !c.NoOrient
	opts.SafetyMargin = c.Margin
	opts.Iterations = c.Iterations
	opts.Logger = log.With(zap.String("input", input))
	return opts, nil
}

// outputFormat resolves "same" from the input extension. Inputs with no
// encoder of their own (gif, bmp) become JPEG.
func (c *Config) outputFormat(input string) squeeze.Format {
	name := c.Format
	if name == "same" {
		name = filepath.Ext(input)
	}
	f, err := squeeze.ParseFormat(name)
	if err != nil {
		return squeeze.JPEG
	}
	return f
}

// outputPath places the output next to the input or in OutDir, with Suffix
// and the extension of the format that will actually be written.
func (c *Config) outputPath(input string, format squeeze.Format) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	dir := c.OutDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+c.Suffix+format.Extension())
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = lvl
	cfg.DisableStacktrace = true
	return cfg.Build()
}
