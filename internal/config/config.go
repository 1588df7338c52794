// Package config loads service configuration from an optional YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the service.
type Config struct {
	// HTTP server port for the controller
	HTTPPort int

	// Root directory of generated sequences ({model}-{material}/{frame}.{format})
	SequencesDir string

	// Catalog backend: "static" (YAML file) or "postgres"
	Catalog     string
	CatalogFile string
	DatabaseURL string

	// Standard material set used when a request names none
	DefaultMaterials []string

	// Generation defaults
	DefaultFrameCount int
	DefaultWidth      int
	DefaultHeight     int
	DefaultFormats    []string
	DefaultQuality    map[string]int

	// Scheduler
	MaxConcurrentJobs int
	MaxRetainedJobs   int
	JobRetention      time.Duration
	RenderMaxAttempts int

	// Render backend: "exec", "docker" or "synthetic"
	Renderer        string
	RenderCommand   string
	RenderImage     string
	RenderTimeout   time.Duration
	ModelsDir       string
	EncoderCommands map[string]string

	// Resource pressure thresholds
	MemoryElevatedPercent float64
	MemoryCriticalPercent float64
	DiskElevatedFreeMB    int64
	DiskCriticalFreeMB    int64
	ResourceCacheTTL      time.Duration

	// Job events: "none", "redis" or "mqtt"
	EventsBackend string
	RedisURL      string
	MQTTBroker    string
	EventsTopic   string

	// Submissions per second per client, 0 = unlimited
	RateLimit      float64
	RateLimitBurst int

	OTELEndpoint     string
	TraceSampleRatio float64
	LogLevel         string
}

var validRenderers = map[string]bool{"exec": true, "docker": true, "synthetic": true}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"http_port":               "PORT",
	"sequences_dir":           "SEQUENCES_DIR",
	"catalog":                 "CATALOG",
	"catalog_file":            "CATALOG_FILE",
	"database_url":            "DATABASE_URL",
	"default_materials":       "DEFAULT_MATERIALS",
	"default_frame_count":     "DEFAULT_FRAME_COUNT",
	"default_formats":         "DEFAULT_FORMATS",
	"max_concurrent_jobs":     "MAX_CONCURRENT_JOBS",
	"max_retained_jobs":       "MAX_RETAINED_JOBS",
	"job_retention":           "JOB_RETENTION",
	"render_max_attempts":     "RENDER_MAX_ATTEMPTS",
	"renderer":                "RENDERER",
	"render_command":          "RENDER_COMMAND",
	"render_image":            "RENDER_IMAGE",
	"render_timeout":          "RENDER_TIMEOUT",
	"models_dir":              "MODELS_DIR",
	"memory_elevated_percent": "MEMORY_ELEVATED_PERCENT",
	"memory_critical_percent": "MEMORY_CRITICAL_PERCENT",
	"disk_elevated_free_mb":   "DISK_ELEVATED_FREE_MB",
	"disk_critical_free_mb":   "DISK_CRITICAL_FREE_MB",
	"resource_cache_ttl":      "RESOURCE_CACHE_TTL",
	"events_backend":          "EVENTS_BACKEND",
	"redis_url":               "REDIS_URL",
	"mqtt_broker":             "MQTT_BROKER",
	"events_topic":            "EVENTS_TOPIC",
	"rate_limit":              "RATE_LIMIT",
	"rate_limit_burst":        "RATE_LIMIT_BURST",
	"otel_endpoint":           "OTEL_EXPORTER_OTLP_ENDPOINT",
	"trace_sample_ratio":      "OTEL_TRACES_SAMPLER_ARG",
	"log_level":               "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", 6262)
	v.SetDefault("sequences_dir", "./public/sequences")
	v.SetDefault("catalog", "static")
	v.SetDefault("catalog_file", "models.yaml")
	v.SetDefault("default_materials", []string{"platinum", "yellow-gold", "white-gold", "rose-gold"})
	v.SetDefault("default_frame_count", 36)
	v.SetDefault("default_width", 800)
	v.SetDefault("default_height", 800)
	v.SetDefault("default_formats", []string{"webp", "avif", "jpg"})
	v.SetDefault("default_quality", map[string]int{"webp": 85, "avif": 75, "jpg": 90})
	v.SetDefault("max_concurrent_jobs", 1)
	v.SetDefault("max_retained_jobs", 100)
	v.SetDefault("job_retention", time.Hour)
	v.SetDefault("render_max_attempts", 3)
	v.SetDefault("renderer", "docker")
	v.SetDefault("render_image", "spinframe/renderer:latest")
	v.SetDefault("render_timeout", 2*time.Minute)
	v.SetDefault("models_dir", "./public/models")
	v.SetDefault("encoder_commands", map[string]string{
		"webp": "cwebp -quiet -q {quality} {input} -o {output}",
		"avif": "avifenc -q {quality} {input} {output}",
	})
	v.SetDefault("memory_elevated_percent", 75.0)
	v.SetDefault("memory_critical_percent", 90.0)
	v.SetDefault("disk_elevated_free_mb", 5120)
	v.SetDefault("disk_critical_free_mb", 1024)
	v.SetDefault("resource_cache_ttl", 5*time.Second)
	v.SetDefault("events_backend", "none")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("mqtt_broker", "localhost:1883")
	v.SetDefault("events_topic", "spinframe/jobs")
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("rate_limit_burst", 5)
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("trace_sample_ratio", 1.0)
	v.SetDefault("log_level", "info")
}

// Load reads configuration from the given YAML file (optional) and environment variables.
// Environment variables take precedence over the file. When path is empty, spinframe.yaml
// in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("spinframe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTPPort:              v.GetInt("http_port"),
		SequencesDir:          v.GetString("sequences_dir"),
		Catalog:               strings.ToLower(v.GetString("catalog")),
		CatalogFile:           v.GetString("catalog_file"),
		DatabaseURL:           v.GetString("database_url"),
		DefaultMaterials:      stringList(v.GetStringSlice("default_materials")),
		DefaultFrameCount:     v.GetInt("default_frame_count"),
		DefaultWidth:          v.GetInt("default_width"),
		DefaultHeight:         v.GetInt("default_height"),
		DefaultFormats:        stringList(v.GetStringSlice("default_formats")),
		DefaultQuality:        intMap(v.GetStringMap("default_quality")),
		MaxConcurrentJobs:     v.GetInt("max_concurrent_jobs"),
		MaxRetainedJobs:       v.GetInt("max_retained_jobs"),
		JobRetention:          v.GetDuration("job_retention"),
		RenderMaxAttempts:     v.GetInt("render_max_attempts"),
		Renderer:              strings.ToLower(v.GetString("renderer")),
		RenderCommand:         v.GetString("render_command"),
		RenderImage:           v.GetString("render_image"),
		RenderTimeout:         v.GetDuration("render_timeout"),
		ModelsDir:             v.GetString("models_dir"),
		EncoderCommands:       v.GetStringMapString("encoder_commands"),
		MemoryElevatedPercent: v.GetFloat64("memory_elevated_percent"),
		MemoryCriticalPercent: v.GetFloat64("memory_critical_percent"),
		DiskElevatedFreeMB:    v.GetInt64("disk_elevated_free_mb"),
		DiskCriticalFreeMB:    v.GetInt64("disk_critical_free_mb"),
		ResourceCacheTTL:      v.GetDuration("resource_cache_ttl"),
		EventsBackend:         strings.ToLower(v.GetString("events_backend")),
		RedisURL:              v.GetString("redis_url"),
		MQTTBroker:            v.GetString("mqtt_broker"),
		EventsTopic:           v.GetString("events_topic"),
		RateLimit:             v.GetFloat64("rate_limit"),
		RateLimitBurst:        v.GetInt("rate_limit_burst"),
		OTELEndpoint:          v.GetString("otel_endpoint"),
		TraceSampleRatio:      v.GetFloat64("trace_sample_ratio"),
		LogLevel:              v.GetString("log_level"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all config values are usable.
func (c *Config) validate() error {
	switch c.Catalog {
	case "static":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when catalog is postgres (env: DATABASE_URL)")
		}
	default:
		return fmt.Errorf("invalid catalog %q: must be static or postgres", c.Catalog)
	}

	if !validRenderers[c.Renderer] {
		return fmt.Errorf("invalid renderer %q: must be exec, docker or synthetic", c.Renderer)
	}
	if c.Renderer == "exec" && c.RenderCommand == "" {
		return errors.New("render_command is required for the exec renderer (env: RENDER_COMMAND)")
	}

	switch c.EventsBackend {
	case "none", "redis", "mqtt":
	default:
		return fmt.Errorf("invalid events_backend %q: must be none, redis or mqtt", c.EventsBackend)
	}

	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max_concurrent_jobs must be positive, got %d", c.MaxConcurrentJobs)
	}
	if c.DefaultFrameCount <= 0 {
		return fmt.Errorf("default_frame_count must be positive, got %d", c.DefaultFrameCount)
	}
	if len(c.DefaultFormats) == 0 {
		return errors.New("default_formats must not be empty")
	}
	if len(c.DefaultMaterials) == 0 {
		return errors.New("default_materials must not be empty")
	}
	if c.MemoryElevatedPercent > c.MemoryCriticalPercent {
		return fmt.Errorf("memory_elevated_percent (%.1f) exceeds memory_critical_percent (%.1f)",
			c.MemoryElevatedPercent, c.MemoryCriticalPercent)
	}
	if c.DiskElevatedFreeMB < c.DiskCriticalFreeMB {
		return fmt.Errorf("disk_elevated_free_mb (%d) is below disk_critical_free_mb (%d)",
			c.DiskElevatedFreeMB, c.DiskCriticalFreeMB)
	}
	if _, err := os.Stat(c.SequencesDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sequences_dir %s: %w", c.SequencesDir, err)
	}
	return nil
}

// stringList normalizes list values, which arrive as a single comma separated
// string when set through the environment.
func stringList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intMap(in map[string]interface{}) map[string]int {
	out := make(map[string]int, len(in))
	for k, raw := range in {
		switch n := raw.(type) {
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		case float64:
			out[k] = int(n)
		}
	}
	return out
}
