/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig controls the capacity of each DocumentCache tier.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type CacheConfig struct {
	ParserCapacity    int `yaml:"parser_capacity"`
	RendererCapacity  int `yaml:"renderer_capacity"`
	RenderCapacity    int `yaml:"render_capacity"`
	StextCapacity     int `yaml:"stext_capacity"`
	RenderConcurrency int `yaml:"render_concurrency"`
}

// TimeoutConfig holds the per-operation wall-clock budgets enforced by DocumentCache.
type TimeoutConfig struct {
	ParseMs          int `yaml:"parse_ms"`
	TextExtractMs    int `yaml:"text_extract_ms"`
	StructuredTextMs int `yaml:"structured_text_ms"`
	SearchMs         int `yaml:"search_ms"`
	RenderMs         int `yaml:"render_ms"`
}

// UploadConfig controls UploadEngine session lifetime and size limits.
type UploadConfig struct {
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxFileSize int64         `yaml:"max_file_size"`
	ChunkStoreDir string      `yaml:"chunk_store_dir"`
}

// SyncConfig controls SyncEngine retention and pull paging.
type SyncConfig struct {
	RetentionPeriod time.Duration `yaml:"retention_period"`
	PullPageSize    int           `yaml:"pull_page_size"`
}

// LoggingConfig mirrors the options consumed by internal/log.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// StoreConfig names the relational backends the engine connects to. SQLite
// backs per-node annotation/upload bookkeeping; Postgres backs the
// cross-device sync log.
type StoreConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	PostgresDSN   string `yaml:"postgres_dsn"`
}

// AppConfig is the full configuration for a docreaderd process, loadable from
// a YAML file with environment variable overrides applied on top.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Cache         CacheConfig   `yaml:"cache"`
	Timeouts      TimeoutConfig `yaml:"timeouts"`
	Upload        UploadConfig  `yaml:"upload"`
	Sync          SyncConfig    `yaml:"sync"`
	Store         StoreConfig   `yaml:"store"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults, matching the capacities and
// timeouts named in the component design.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Cache: CacheConfig{
			ParserCapacity:    50,
			RendererCapacity:  50,
			RenderCapacity:    500,
			StextCapacity:     1000,
			RenderConcurrency: 4,
		},
		Timeouts: TimeoutConfig{
			ParseMs:          30_000,
			TextExtractMs:    15_000,
			StructuredTextMs: 15_000,
			SearchMs:         30_000,
			RenderMs:         30_000,
		},
		Upload: UploadConfig{
			SessionTTL:    24 * time.Hour,
			MaxFileSize:   2 << 30, // 2 GiB
			ChunkStoreDir: "./data/chunks",
		},
		Sync: SyncConfig{
			RetentionPeriod: 30 * 24 * time.Hour,
			PullPageSize:    100,
		},
		Store: StoreConfig{
			SQLitePath:  "./data/docreaderd.db",
			PostgresDSN: "",
		},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvRenderConcurrency = "DOCREADERD_RENDER_CONCURRENCY"
	EnvUploadSessionTTL  = "DOCREADERD_UPLOAD_SESSION_TTL"
	EnvUploadMaxFileSize = "DOCREADERD_UPLOAD_MAX_FILE_SIZE"
	EnvSyncRetention     = "DOCREADERD_SYNC_RETENTION"
	EnvSQLitePath        = "DOCREADERD_SQLITE_PATH"
	EnvPostgresDSN       = "DOCREADERD_POSTGRES_DSN"
	// Logging envs
	EnvLogLevel  = "DOCREADERD_LOG_LEVEL"
	EnvLogFormat = "DOCREADERD_LOG_FORMAT"
	EnvLogSource = "DOCREADERD_LOG_SOURCE"
	EnvLogFile   = "DOCREADERD_LOG_FILE"
)

// ConfigPath returns the per-user config file path, following the same
// per-OS convention the desktop tooling in this codebase has always used.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "docreaderd")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "docreaderd")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "docreaderd")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges
// environment overrides on top.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the config YAML to the per-user config path.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Cache.ParserCapacity != 0 {
		dst.Cache.ParserCapacity = src.Cache.ParserCapacity
	}
	if src.Cache.RendererCapacity != 0 {
		dst.Cache.RendererCapacity = src.Cache.RendererCapacity
	}
	if src.Cache.RenderCapacity != 0 {
		dst.Cache.RenderCapacity = src.Cache.RenderCapacity
	}
	if src.Cache.StextCapacity != 0 {
		dst.Cache.StextCapacity = src.Cache.StextCapacity
	}
	if src.Cache.RenderConcurrency != 0 {
		dst.Cache.RenderConcurrency = src.Cache.RenderConcurrency
	}
	if src.Timeouts.ParseMs != 0 {
		dst.Timeouts.ParseMs = src.Timeouts.ParseMs
	}
	if src.Timeouts.TextExtractMs != 0 {
		dst.Timeouts.TextExtractMs = src.Timeouts.TextExtractMs
	}
	if src.Timeouts.StructuredTextMs != 0 {
		dst.Timeouts.StructuredTextMs = src.Timeouts.StructuredTextMs
	}
	if src.Timeouts.SearchMs != 0 {
		dst.Timeouts.SearchMs = src.Timeouts.SearchMs
	}
	if src.Timeouts.RenderMs != 0 {
		dst.Timeouts.RenderMs = src.Timeouts.RenderMs
	}
	if src.Upload.SessionTTL != 0 {
		dst.Upload.SessionTTL = src.Upload.SessionTTL
	}
	if src.Upload.MaxFileSize != 0 {
		dst.Upload.MaxFileSize = src.Upload.MaxFileSize
	}
	if strings.TrimSpace(src.Upload.ChunkStoreDir) != "" {
		dst.Upload.ChunkStoreDir = src.Upload.ChunkStoreDir
	}
	if src.Sync.RetentionPeriod != 0 {
		dst.Sync.RetentionPeriod = src.Sync.RetentionPeriod
	}
	if src.Sync.PullPageSize != 0 {
		dst.Sync.PullPageSize = src.Sync.PullPageSize
	}
	if strings.TrimSpace(src.Store.SQLitePath) != "" {
		dst.Store.SQLitePath = src.Store.SQLitePath
	}
	if strings.TrimSpace(src.Store.PostgresDSN) != "" {
		dst.Store.PostgresDSN = src.Store.PostgresDSN
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvRenderConcurrency)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.RenderConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvUploadSessionTTL)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upload.SessionTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvUploadMaxFileSize)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Upload.MaxFileSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSyncRetention)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.RetentionPeriod = d
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvSQLitePath)); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	switch key {
	case "cache.render_concurrency":
		if os.Getenv(EnvRenderConcurrency) != "" {
			return EnvRenderConcurrency, true
		}
	case "upload.session_ttl":
		if os.Getenv(EnvUploadSessionTTL) != "" {
			return EnvUploadSessionTTL, true
		}
	case "upload.max_file_size":
		if os.Getenv(EnvUploadMaxFileSize) != "" {
			return EnvUploadMaxFileSize, true
		}
	case "sync.retention_period":
		if os.Getenv(EnvSyncRetention) != "" {
			return EnvSyncRetention, true
		}
	case "store.sqlite_path":
		if os.Getenv(EnvSQLitePath) != "" {
			return EnvSQLitePath, true
		}
	case "store.postgres_dsn":
		if os.Getenv(EnvPostgresDSN) != "" {
			return EnvPostgresDSN, true
		}
	case "logging.level":
		if os.Getenv(EnvLogLevel) != "" {
			return EnvLogLevel, true
		}
	case "logging.format":
		if os.Getenv(EnvLogFormat) != "" {
			return EnvLogFormat, true
		}
	case "logging.source":
		if os.Getenv(EnvLogSource) != "" {
			return EnvLogSource, true
		}
	case "logging.file":
		if os.Getenv(EnvLogFile) != "" {
			return EnvLogFile, true
		}
	}
	return "", false
}
