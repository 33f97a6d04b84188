// Package config loads otell's configuration in three layers: built-in
// defaults, an optional TOML file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/otell-io/otell/internal/otelsink/otellerr"
)

// Config holds every tunable the otell binary needs at startup.
type Config struct {
	DBPath string `toml:"db_path"`

	OtlpGrpcAddr string `toml:"otlp_grpc_addr"`
	OtlpHTTPAddr string `toml:"otlp_http_addr"`

	QueryTCPAddr  string `toml:"query_tcp_addr"`
	QueryHTTPAddr string `toml:"query_http_addr"`
	UDSPath       string `toml:"uds_path"`

	RetentionTTL      time.Duration `toml:"-"`
	RetentionTTLRaw   string        `toml:"retention_ttl"`
	RetentionMaxBytes uint64        `toml:"retention_max_bytes"`

	WriteBatchSize int           `toml:"write_batch_size"`
	WriteFlush     time.Duration `toml:"-"`
	WriteFlushMS   uint64        `toml:"write_flush_ms"`

	ForwardOtlpEndpoint string        `toml:"forward_otlp_endpoint"`
	ForwardOtlpProtocol string        `toml:"forward_otlp_protocol"`
	ForwardCompression  string        `toml:"forward_otlp_compression"`
	ForwardOtlpHeaders  []string      `toml:"forward_otlp_headers"`
	ForwardTimeout      time.Duration `toml:"-"`
	ForwardTimeoutRaw   string        `toml:"forward_otlp_timeout"`
}

// Default returns otell's built-in defaults, following XDG base directory
// conventions for the database and socket paths.
func Default() *Config {
	dataRoot := xdgDataHome()
	runtimeRoot := xdgRuntimeDir(dataRoot)

	return &Config{
		DBPath: filepath.Join(dataRoot, "otell", "otell.duckdb"),

		OtlpGrpcAddr: "127.0.0.1:4317",
		OtlpHTTPAddr: "127.0.0.1:4318",

		QueryTCPAddr:  "127.0.0.1:1777",
		QueryHTTPAddr: "127.0.0.1:1778",
		UDSPath:       filepath.Join(runtimeRoot, "otell", "otell.sock"),

		RetentionTTL:      24 * time.Hour,
		RetentionMaxBytes: 2 * 1024 * 1024 * 1024,

		WriteBatchSize: 2048,
		WriteFlushMS:   200,
	}
}

func xdgDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(homeDir(), ".local", "share")
}

func xdgRuntimeDir(fallbackDataRoot string) string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return v
	}
	return fallbackDataRoot
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	return "."
}

// Load builds a Config by layering defaults, an optional TOML file
// (explicit path, $OTELL_CONFIG, or $XDG_CONFIG_HOME/otell/config.toml, in
// that order of discovery), and OTELL_-prefixed environment variables.
func Load(explicitPath string) (*Config, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath)
	if path != "" {
		if err := mergeFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := mergeFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := finalizeDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("OTELL_CONFIG"); v != "" {
		return v
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(homeDir(), ".config")
	}
	candidate := filepath.Join(xdgConfig, "otell", "config.toml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return otellerr.Wrapf(otellerr.Io, err, "failed to read config file %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return otellerr.Wrapf(otellerr.Config, err, "failed to parse config file %s", path)
	}
	return nil
}

func mergeFromEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("OTELL_" + key); ok {
			*dst = v
		}
	}
	str("DB_PATH", &cfg.DBPath)
	str("OTLP_GRPC_ADDR", &cfg.OtlpGrpcAddr)
	str("OTLP_HTTP_ADDR", &cfg.OtlpHTTPAddr)
	str("QUERY_TCP_ADDR", &cfg.QueryTCPAddr)
	str("QUERY_HTTP_ADDR", &cfg.QueryHTTPAddr)
	str("UDS_PATH", &cfg.UDSPath)
	str("RETENTION_TTL", &cfg.RetentionTTLRaw)
	str("FORWARD_OTLP_ENDPOINT", &cfg.ForwardOtlpEndpoint)
	str("FORWARD_OTLP_PROTOCOL", &cfg.ForwardOtlpProtocol)
	str("FORWARD_OTLP_COMPRESSION", &cfg.ForwardCompression)
	str("FORWARD_OTLP_TIMEOUT", &cfg.ForwardTimeoutRaw)

	if v, ok := os.LookupEnv("OTELL_RETENTION_MAX_BYTES"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return otellerr.Wrapf(otellerr.Config, err, "invalid OTELL_RETENTION_MAX_BYTES: %s", v)
		}
		cfg.RetentionMaxBytes = n
	}
	if v, ok := os.LookupEnv("OTELL_WRITE_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return otellerr.Wrapf(otellerr.Config, err, "invalid OTELL_WRITE_BATCH_SIZE: %s", v)
		}
		cfg.WriteBatchSize = n
	}
	if v, ok := os.LookupEnv("OTELL_WRITE_FLUSH_MS"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return otellerr.Wrapf(otellerr.Config, err, "invalid OTELL_WRITE_FLUSH_MS: %s", v)
		}
		cfg.WriteFlushMS = n
	}
	if v, ok := os.LookupEnv("OTELL_FORWARD_OTLP_HEADERS"); ok {
		cfg.ForwardOtlpHeaders = []string{v}
	}

	return nil
}

// finalizeDurations parses any raw duration strings set by the file or env
// layers, falling back to the struct-literal default already present, and
// derives the duration form of millisecond-denominated settings.
func finalizeDurations(cfg *Config) error {
	if cfg.RetentionTTLRaw != "" {
		d, err := time.ParseDuration(cfg.RetentionTTLRaw)
		if err != nil {
			return otellerr.Wrapf(otellerr.Parse, err, "invalid retention_ttl: %s", cfg.RetentionTTLRaw)
		}
		cfg.RetentionTTL = d
	}
	cfg.WriteFlush = time.Duration(cfg.WriteFlushMS) * time.Millisecond
	if cfg.ForwardTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.ForwardTimeoutRaw)
		if err != nil {
			return otellerr.Wrapf(otellerr.Parse, err, "invalid forward_otlp_timeout: %s", cfg.ForwardTimeoutRaw)
		}
		cfg.ForwardTimeout = d
	}
	return nil
}

// ParseOtlpHeaders parses a comma-separated "k=v,k2=v2" header list, as
// accepted from the forward_otlp_headers config entry or
// OTELL_FORWARD_OTLP_HEADERS env var. Malformed entries are rejected
// wholesale rather than silently skipped, since headers are operator
// configuration, not untrusted input.
func ParseOtlpHeaders(raw []string) ([][2]string, error) {
	var out [][2]string
	for _, line := range raw {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, value, ok := strings.Cut(part, "=")
			if !ok {
				return nil, otellerr.Newf(otellerr.Parse, "invalid forward header entry: %s", part)
			}
			key = strings.TrimSpace(key)
			value = strings.TrimSpace(value)
			if key == "" {
				return nil, otellerr.Newf(otellerr.Parse, "invalid forward header entry: %s", part)
			}
			out = append(out, [2]string{key, value})
		}
	}
	return out, nil
}

// String implements fmt.Stringer for debug logging without leaking header
// values that may carry credentials.
func (c *Config) String() string {
	return fmt.Sprintf("Config{db_path=%s otlp_grpc=%s otlp_http=%s query_tcp=%s query_http=%s uds=%s}",
		c.DBPath, c.OtlpGrpcAddr, c.OtlpHTTPAddr, c.QueryTCPAddr, c.QueryHTTPAddr, c.UDSPath)
}
