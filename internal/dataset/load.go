// Package dataset performs the one-shot load of the route dataset from a file,
// an HTTP(S) URL or a database.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"transit-map/internal/db"
	"transit-map/internal/transit"
)

// LoadError is the single failure the application recognizes: the dataset
// could not be read, decoded or validated.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load dataset from %s: %v", e.Source, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

const maxBodyBytes = 16 << 20

type Loader struct {
	Client *http.Client
	Logger *slog.Logger
}

func NewLoader(timeout time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		Client: &http.Client{Timeout: timeout},
		Logger: logger.With("component", "dataset"),
	}
}

// Load reads, validates and normalizes the dataset named by source. Any
// failure comes back as a *LoadError.
func (l *Loader) Load(ctx context.Context, source string) (*transit.Dataset, error) {
	start := time.Now()
	d, err := l.read(ctx, source)
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		return nil, &LoadError{Source: describe(source), Err: err}
	}
	for _, fix := range d.Normalize() {
		l.Logger.Warn("normalized vehicle", "fix", fix)
	}
	l.Logger.Info("dataset loaded",
		"source", describe(source),
		"stops", len(d.Stops),
		"routes", len(d.Routes),
		"vehicles", len(d.Vehicles),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return d, nil
}

func (l *Loader) read(ctx context.Context, source string) (*transit.Dataset, error) {
	switch {
	case db.IsDSN(source):
		return l.readDB(ctx, source)
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return l.readHTTP(ctx, source)
	default:
		return l.readFile(source)
	}
}

func (l *Loader) readDB(ctx context.Context, dsn string) (*transit.Dataset, error) {
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := db.Ping(ctx, conn); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db.LoadDataset(ctx, conn)
}

func (l *Loader) readHTTP(ctx context.Context, url string) (*transit.Dataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml")
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	format := formatFromExt(path.Ext(req.URL.Path))
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && strings.Contains(mt, "yaml") {
		format = FormatYAML
	}
	return Decode(body, format)
}

func (l *Loader) readFile(name string) (*transit.Dataset, error) {
	body, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Decode(body, formatFromExt(filepath.Ext(name)))
}

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func formatFromExt(ext string) Format {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Decode parses a dataset document without validating it.
func Decode(body []byte, format Format) (*transit.Dataset, error) {
	var d transit.Dataset
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return &d, nil
}

func describe(source string) string {
	if db.IsDSN(source) {
		return db.Redact(source)
	}
	return source
}
