// Package config defines loom's configuration and its layered loading:
// struct defaults, then an optional YAML file, then LOOM_* environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Platform  PlatformConfig  `koanf:"platform"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Dataset   DatasetConfig   `koanf:"dataset"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Wait      WaitConfig      `koanf:"wait"`
	Score     ScoreConfig     `koanf:"score"`
	Serve     ServeConfig     `koanf:"serve"`
	Log       LogConfig       `koanf:"log"`
}

type PlatformConfig struct {
	BaseURL string `koanf:"base_url"`
	APIKey  string `koanf:"api_key"`
}

type WorkspaceConfig struct {
	DataDir string `koanf:"data_dir"`
}

type DatasetConfig struct {
	// Dir is where built CSV artifacts are written.
	Dir string `koanf:"dir"`
}

type IngestConfig struct {
	Workers int `koanf:"workers"`
}

type WaitConfig struct {
	Interval time.Duration `koanf:"interval"`
	MaxWait  time.Duration `koanf:"max_wait"`
}

type ScoreConfig struct {
	// Groups are fetched in order; earlier groups win when a field appears
	// in more than one.
	Groups   []string `koanf:"groups"`
	Endpoint string   `koanf:"endpoint"`
	// Dataset names the manifest whose column order drives assembly; empty
	// means the most recently built one.
	Dataset string `koanf:"dataset"`
}

type ServeConfig struct {
	Addr  string `koanf:"addr"`
	Token string `koanf:"token"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Platform: PlatformConfig{
			BaseURL: "http://localhost:8460",
		},
		Workspace: WorkspaceConfig{
			DataDir: defaultDataDir(),
		},
		Dataset: DatasetConfig{
			Dir: "datasets",
		},
		Ingest: IngestConfig{
			Workers: 4,
		},
		Wait: WaitConfig{
			Interval: 5 * time.Second,
			MaxWait:  30 * time.Minute,
		},
		Score: ScoreConfig{
			Groups:   []string{"transactions", "identity"},
			Endpoint: "fraud",
		},
		Serve: ServeConfig{
			Addr: ":8477",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "loom-data"
		}
	}
	return filepath.Join(dir, "loom")
}

// KeyInfo is one configuration key as shown by `loom config show`.
type KeyInfo struct {
	Key    string
	Value  string
	Secret bool
}

// ShowAll flattens the configuration for display. Secret values are redacted
// to "(set)" when non-empty.
func (c Config) ShowAll() []KeyInfo {
	groups := ""
	for i, g := range c.Score.Groups {
		if i > 0 {
			groups += ","
		}
		groups += g
	}

	keys := []KeyInfo{
		{Key: "platform.base_url", Value: c.Platform.BaseURL},
		{Key: "platform.api_key", Value: c.Platform.APIKey, Secret: true},
		{Key: "workspace.data_dir", Value: c.Workspace.DataDir},
		{Key: "dataset.dir", Value: c.Dataset.Dir},
		{Key: "ingest.workers", Value: fmt.Sprintf("%d", c.Ingest.Workers)},
		{Key: "wait.interval", Value: c.Wait.Interval.String()},
		{Key: "wait.max_wait", Value: c.Wait.MaxWait.String()},
		{Key: "score.groups", Value: groups},
		{Key: "score.endpoint", Value: c.Score.Endpoint},
		{Key: "score.dataset", Value: c.Score.Dataset},
		{Key: "serve.addr", Value: c.Serve.Addr},
		{Key: "serve.token", Value: c.Serve.Token, Secret: true},
		{Key: "log.level", Value: c.Log.Level},
	}
	for i := range keys {
		if keys[i].Secret && keys[i].Value != "" {
			keys[i].Value = "(set)"
		}
	}
	return keys
}
