package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatasetSource  string
	DatasetTimeout time.Duration

	TickInterval  time.Duration
	ETAFactor     float64
	DefaultWidth  float64
	DefaultHeight float64

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	WSBuffer        int

	LogLevel slog.Level

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetricsAddr string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a variable lookup; tests pass a map-backed one.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}
	cfg := &Config{
		DatasetSource:  e.str("DATASET_SOURCE", "data/routes.json"),
		DatasetTimeout: e.duration("DATASET_TIMEOUT", 10*time.Second),

		ETAFactor:     e.positiveFloat("ETA_FACTOR", 5),
		DefaultWidth:  e.positiveFloat("DEFAULT_WIDTH", 800),
		DefaultHeight: e.positiveFloat("DEFAULT_HEIGHT", 600),

		HTTPAddr:        e.str("HTTP_ADDR", ":8080"),
		ReadTimeout:     e.duration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    e.duration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: e.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		CORSOrigins:     e.csv("CORS_ORIGINS", []string{"*"}),
		WSBuffer:        e.positiveInt("WS_BUFFER", 64),

		LogLevel: e.logLevel("LOG_LEVEL", slog.LevelInfo),

		// Empty NATS_URL disables position publishing.
		NATSURL:           getenv("NATS_URL"),
		NATSSubjectPrefix: e.str("NATS_SUBJECT_PREFIX", "vehicles"),
		LogNATSSubjects:   e.boolean("LOG_NATS_SUBJECTS"),

		// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
		MetricsAddr: getenv("METRICS_ADDR"),
	}

	// Tick interval
	if v := getenv("TICK_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %q", v)
		}
		cfg.TickInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.TickInterval = 2 * time.Second
	}

	if e.err != nil {
		return nil, e.err
	}
	if strings.TrimSpace(cfg.DatasetSource) == "" {
		return nil, fmt.Errorf("DATASET_SOURCE must not be blank")
	}
	return cfg, nil
}

// env records the first parse error so Load can report it after reading
// every variable.
type env struct {
	get func(string) string
	err error
}

func (e *env) fail(key, v string) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s: %q", key, v)
	}
}

func (e *env) str(key, def string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(key, v)
		return def
	}
	return d
}

func (e *env) positiveInt(key string, def int) int {
	v := e.get(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		e.fail(key, v)
		return def
	}
	return i
}

func (e *env) positiveFloat(key string, def float64) float64 {
	v := e.get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		e.fail(key, v)
		return def
	}
	return f
}

func (e *env) boolean(key string) bool {
	switch strings.ToLower(strings.TrimSpace(e.get(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (e *env) csv(key string, def []string) []string {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (e *env) logLevel(key string, def slog.Level) slog.Level {
	v := e.get(key)
	switch strings.ToLower(v) {
	case "":
		return def
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		e.fail(key, v)
		return def
	}
}
