package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DOWNLOAD_TIMEOUT", "DOWNLOAD_RETRIES", "DOWNLOAD_BACKOFF", "FILE_PREFIX", "MANIFEST_INDEX_H3_RES", "RUNS_CACHE_SIZE"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Addr != ":8090" || c.FilePrefix != "gmrt" || c.DefaultResolution != "medium" {
		t.Fatalf("defaults: %+v", c)
	}
	if c.DownloadTimeout != 30*time.Second || c.DownloadRetries != 3 || c.DownloadBackoff != 500*time.Millisecond {
		t.Fatalf("download defaults: %+v", c)
	}
	if c.ManifestIndex.H3Res != 2 || c.RunsCacheSize != 256 {
		t.Fatalf("index/runs defaults: %+v", c)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("DOWNLOAD_TIMEOUT", "5s")
	t.Setenv("DOWNLOAD_RETRIES", "-2")
	t.Setenv("MANIFEST_INDEX_H3_RES", "99")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("INDEXER_ENABLED", "")
	t.Setenv("KAFKA_GROUP_ID", "")
	c := FromEnv()
	if c.DownloadTimeout != 5*time.Second {
		t.Fatalf("timeout: %v", c.DownloadTimeout)
	}
	if c.DownloadRetries != 0 {
		t.Fatalf("negative retries should clamp to 0, got %d", c.DownloadRetries)
	}
	if c.ManifestIndex.H3Res != 15 {
		t.Fatalf("h3 res clamp: %d", c.ManifestIndex.H3Res)
	}
	if !c.Events.Enabled {
		t.Fatal("events should be enabled")
	}
	if c.Events.IndexerEnabled || c.Events.GroupID != "gmrt-indexer" {
		t.Fatalf("indexer defaults: %+v", c.Events)
	}
	if got := Brokers(c.Events.Brokers); len(got) != 2 || got[1] != "b:9092" {
		t.Fatalf("brokers: %v", got)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tiles.yaml")
	body := "dest_dir: /data/tiles\nDOWNLOAD_RETRIES: 5\nfile_prefix: bathy\nmetrics_enabled: false\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DEST_DIR", "")
	t.Setenv("DOWNLOAD_RETRIES", "")
	t.Setenv("METRICS_ENABLED", "")
	t.Setenv("FILE_PREFIX", "env")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DestDir != "/data/tiles" || c.DownloadRetries != 5 || c.MetricsEnabled {
		t.Fatalf("file values: %+v", c)
	}
	if c.FilePrefix != "env" {
		t.Fatalf("env should win over file, got %q", c.FilePrefix)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	p := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(p, []byte("- a\n- b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for non-mapping yaml")
	}
}
