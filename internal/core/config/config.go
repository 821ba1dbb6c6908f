package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ManifestIndexCfg struct {
	Enabled   bool
	RedisAddr string
	H3Res     int
	TTL       time.Duration
	OpTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Topic   string
	Brokers string
	// IndexerEnabled consumes Topic into the manifest index.
	IndexerEnabled bool
	GroupID        string
}

type Config struct {
	Addr              string
	LogLevel          string
	LogConsole        bool
	LogSampleN        int
	GMRTBaseURL       string
	DestDir           string
	FilePrefix        string
	DefaultResolution string
	DownloadTimeout   time.Duration
	DownloadRetries   int
	DownloadBackoff   time.Duration
	RunsCacheSize     int
	MetricsEnabled    bool
	ManifestIndex     ManifestIndexCfg
	Events            EventsCfg
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() Config {
	return build(env{})
}

// Load reads a YAML file of KEY: value pairs (same names as the environment
// variables, case-insensitive) and lets the environment override it.
func Load(path string) (Config, error) {
	if path == "" {
		return FromEnv(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	file := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		file[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return build(env{file: file}), nil
}

func build(src env) Config {
	res := src.getint("MANIFEST_INDEX_H3_RES", 2)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}
	retries := src.getint("DOWNLOAD_RETRIES", 3)
	if retries < 0 {
		retries = 0
	}
	redisAddr := src.getenv("REDIS_ADDR", "localhost:6379")
	brokers := src.getenv("KAFKA_BROKERS", "localhost:9092")

	return Config{
		Addr:              src.getenv("ADDR", ":8090"),
		LogLevel:          src.getenv("LOG_LEVEL", "info"),
		LogConsole:        src.getbool("LOG_CONSOLE", false),
		LogSampleN:        src.getint("LOG_SAMPLE_N", 0),
		GMRTBaseURL:       src.getenv("GMRT_BASE_URL", "https://www.gmrt.org/services/GridServer"),
		DestDir:           src.getenv("DEST_DIR", "."),
		FilePrefix:        src.getenv("FILE_PREFIX", "gmrt"),
		DefaultResolution: src.getenv("DEFAULT_RESOLUTION", "medium"),
		DownloadTimeout:   src.getduration("DOWNLOAD_TIMEOUT", 30*time.Second),
		DownloadRetries:   retries,
		DownloadBackoff:   src.getduration("DOWNLOAD_BACKOFF", 500*time.Millisecond),
		RunsCacheSize:     src.getint("RUNS_CACHE_SIZE", 256),
		MetricsEnabled:    src.getbool("METRICS_ENABLED", true),
		ManifestIndex: ManifestIndexCfg{
			Enabled:   src.getbool("MANIFEST_INDEX_ENABLED", false),
			RedisAddr: redisAddr,
			H3Res:     res,
			TTL:       src.getduration("MANIFEST_INDEX_TTL", 0),
			OpTimeout: src.getduration("MANIFEST_INDEX_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled:        src.getbool("EVENTS_ENABLED", false),
			Topic:          src.getenv("KAFKA_TOPIC", "gmrt-manifest"),
			Brokers:        brokers,
			IndexerEnabled: src.getbool("INDEXER_ENABLED", false),
			GroupID:        src.getenv("KAFKA_GROUP_ID", "gmrt-indexer"),
		},
	}
}

// env resolves keys from the environment first, then the config file.
type env struct {
	file map[string]string
}

func (e env) lookup(k string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return e.file[k]
}

func (e env) getenv(k, def string) string {
	if v := e.lookup(k); v != "" {
		return v
	}
	return def
}

func (e env) getint(k string, def int) int {
	if v := e.lookup(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func (e env) getbool(k string, def bool) bool {
	if v := e.lookup(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func (e env) getduration(k string, def time.Duration) time.Duration {
	if v := e.lookup(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

// Brokers splits a comma separated broker list.
func Brokers(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
