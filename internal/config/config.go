// Package config loads vidscribe settings from defaults, an optional YAML
// file, VIDSCRIBE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/GriffinCanCode/vidscribe/internal/dedup"
	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. VIDSCRIBE_DEDUP_CACHE_SIZE.
const EnvPrefix = "VIDSCRIBE"

type Config struct {
	Logging    Logging    `mapstructure:"logging"`
	Output     Output     `mapstructure:"output"`
	Extraction Extraction `mapstructure:"extraction"`
	Dedup      Dedup      `mapstructure:"dedup"`
	Processing Processing `mapstructure:"processing"`
	OCR        OCR        `mapstructure:"ocr"`
	Server     Server     `mapstructure:"server"`
	Store      Store      `mapstructure:"store"`
}

type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	File   string `mapstructure:"file"`
}

type Output struct {
	Directory string `mapstructure:"directory"`
	PDF       bool   `mapstructure:"pdf"`
}

type Extraction struct {
	FPS        float64 `mapstructure:"fps"`
	MinQuality float64 `mapstructure:"min_quality"`
	FFmpeg     string  `mapstructure:"ffmpeg"`
	FFprobe    string  `mapstructure:"ffprobe"`
}

type Dedup struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	CacheSize           int     `mapstructure:"cache_size"`
	Workers             int     `mapstructure:"workers"`
	ImageHash           string  `mapstructure:"image_hash"` // content or perceptual
}

type Processing struct {
	KeepVideo   bool   `mapstructure:"keep_video"`
	DownloadDir string `mapstructure:"download_dir"`
}

type OCR struct {
	Backend    string        `mapstructure:"backend"` // grpc, tesseract or none
	Addr       string        `mapstructure:"addr"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Rate       float64       `mapstructure:"rate"` // requests per second, 0 = unlimited
	Burst      int           `mapstructure:"burst"`
	Workers    int           `mapstructure:"workers"`
	Languages  []string      `mapstructure:"languages"`
	Preprocess bool          `mapstructure:"preprocess"`
}

type Server struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	MaxJobs     int      `mapstructure:"max_jobs"`
}

type Store struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.pdf", false)
	v.SetDefault("extraction.fps", 1.0)
	v.SetDefault("extraction.min_quality", 0.1)
	v.SetDefault("extraction.ffmpeg", "ffmpeg")
	v.SetDefault("extraction.ffprobe", "ffprobe")
	v.SetDefault("dedup.similarity_threshold", dedup.DefaultSimilarityThreshold)
	v.SetDefault("dedup.cache_size", dedup.DefaultCacheSize)
	v.SetDefault("dedup.workers", 0)
	v.SetDefault("dedup.image_hash", "content")
	v.SetDefault("processing.keep_video", false)
	v.SetDefault("processing.download_dir", "")
	v.SetDefault("ocr.backend", "grpc")
	v.SetDefault("ocr.addr", "localhost:50051")
	v.SetDefault("ocr.timeout", 10*time.Second)
	v.SetDefault("ocr.rate", 20.0)
	v.SetDefault("ocr.burst", 5)
	v.SetDefault("ocr.workers", runtime.NumCPU())
	v.SetDefault("ocr.languages", []string{"en", "ko"})
	v.SetDefault("ocr.preprocess", true)
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_jobs", 2)
	v.SetDefault("store.path", "vidscribe.db")
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"output":      "output.directory",
	"pdf":         "output.pdf",
	"fps":         "extraction.fps",
	"min-quality": "extraction.min_quality",
	"threshold":   "dedup.similarity_threshold",
	"cache-size":  "dedup.cache_size",
	"image-hash":  "dedup.image_hash",
	"keep-video":  "processing.keep_video",
	"ocr-backend": "ocr.backend",
	"ocr-addr":    "ocr.addr",
	"addr":        "server.addr",
	"db":          "store.path",
}

// RegisterFlags defines the config flags on fs. Only flags the user sets
// override file and environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (text, json)")
	fs.StringP("output", "o", "output", "output directory")
	fs.Bool("pdf", false, "also write a slide PDF")
	fs.Float64("fps", 1, "frames sampled per second of video")
	fs.Float64("min-quality", 0.1, "minimum frame sharpness in [0,1]")
	fs.Float64("threshold", dedup.DefaultSimilarityThreshold, "similarity threshold in [0,1]")
	fs.Int("cache-size", dedup.DefaultCacheSize, "entries kept per dedup cache")
	fs.String("image-hash", "content", "image dedup key (content, perceptual)")
	fs.Bool("keep-video", false, "keep downloaded video after processing")
	fs.String("ocr-backend", "grpc", "OCR backend (grpc, tesseract, none)")
	fs.String("ocr-addr", "localhost:50051", "OCR gRPC server address")
	fs.String("addr", ":8000", "HTTP listen address")
	fs.String("db", "vidscribe.db", "job store path")
}

// Load reads the configuration. path may be empty; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "read config %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, apperrors.Wrapf(err, apperrors.ConfigInvalid, "bind flag %s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "decode config")
	}
	// list values from the environment may carry blanks around commas
	cfg.OCR.Languages = splitList(cfg.OCR.Languages)
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1:
		return invalid("dedup.similarity_threshold", "%v is outside [0,1]", c.Dedup.SimilarityThreshold)
	case c.Dedup.CacheSize <= 0:
		return invalid("dedup.cache_size", "%d must be positive", c.Dedup.CacheSize)
	case c.Dedup.ImageHash != "content" && c.Dedup.ImageHash != "perceptual":
		return invalid("dedup.image_hash", "unknown hash %q", c.Dedup.ImageHash)
	case c.Extraction.FPS <= 0:
		return invalid("extraction.fps", "%v must be positive", c.Extraction.FPS)
	case c.Extraction.MinQuality < 0 || c.Extraction.MinQuality > 1:
		return invalid("extraction.min_quality", "%v is outside [0,1]", c.Extraction.MinQuality)
	case c.OCR.Backend != "grpc" && c.OCR.Backend != "tesseract" && c.OCR.Backend != "none":
		return invalid("ocr.backend", "unknown backend %q", c.OCR.Backend)
	case c.OCR.Rate < 0:
		return invalid("ocr.rate", "%v must not be negative", c.OCR.Rate)
	case c.Logging.Format != "text" && c.Logging.Format != "json":
		return invalid("logging.format", "unknown format %q", c.Logging.Format)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return invalid("logging.level", "unknown level %q", c.Logging.Level)
	}
	return nil
}

// SlogLevel returns the configured level, info if it does not parse.
func (l Logging) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func invalid(key, format string, args ...any) error {
	return apperrors.Newf(apperrors.ConfigInvalid, format, args...).WithMetadata("key", key)
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, p := range strings.Split(item, ",") {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
