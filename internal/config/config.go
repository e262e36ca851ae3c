// Package config loads warden's layered settings. Files set defaults, the
// environment wins: a CI job can override any knob with a WARDEN_* variable
// without touching the repo.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config mirrors the common audit/scan flag names. Zero values mean "not set".
type Config struct {
	Workers              *int   `yaml:"workers,omitempty"`
	MaxFiles             *int   `yaml:"max_files,omitempty"`
	MaxBytes             *int64 `yaml:"max_bytes,omitempty"`
	Timeout              string `yaml:"timeout,omitempty"`
	Verbose              *bool  `yaml:"verbose,omitempty"`
	NoColor              *bool  `yaml:"no_color,omitempty"`
	CatalogDir           string `yaml:"catalog_dir,omitempty"`
	NoCustom             *bool  `yaml:"no_custom_catalog,omitempty"`
	Manifest             string `yaml:"manifest,omitempty"`
	Policy               string `yaml:"policy,omitempty"`
	Suppressions         string `yaml:"suppressions,omitempty"`
	FailOn               string `yaml:"fail_on,omitempty"`
	Baseline             string `yaml:"baseline,omitempty"`
	Format               string `yaml:"format,omitempty"`
	StructuralErrorLimit *int   `yaml:"structural_error_limit,omitempty"`
	ScopeAware           *bool  `yaml:"scope_aware,omitempty"`
	HistoryKeep          *int   `yaml:"history_keep,omitempty"`
}

// Load reads config from layered sources:
//  1. ~/.warden/config.yml (global)
//  2. ./.warden/config.yml (repo-local, takes precedence)
//  3. ./.env via godotenv, then WARDEN_* environment variables (win over
//     both files; godotenv never overrides variables already set)
//
// Missing files are silently ignored. Returns zero Config if nothing is set.
func Load() (Config, error) {
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	var globalPath, localPath string
	if home != "" {
		globalPath = filepath.Join(home, ".warden", "config.yml")
	}

	cwd, _ := os.Getwd()
	if cwd != "" {
		localPath = filepath.Join(cwd, ".warden", "config.yml")
	}

	var merged Config

	if globalPath != "" {
		global, err := loadFile(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config %s: %w", globalPath, err)
		}
		merged = merge(merged, global)
	}

	if localPath != "" {
		local, err := loadFile(localPath)
		if err != nil {
			return Config{}, fmt.Errorf("load local config %s: %w", localPath, err)
		}
		merged = merge(merged, local)
	}

	return applyEnv(merged)
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// merge applies overrides from b onto a. Non-zero fields in b win.
func merge(a, b Config) Config {
	if b.Workers != nil {
		a.Workers = b.Workers
	}
	if b.MaxFiles != nil {
		a.MaxFiles = b.MaxFiles
	}
	if b.MaxBytes != nil {
		a.MaxBytes = b.MaxBytes
	}
	if b.Timeout != "" {
		a.Timeout = b.Timeout
	}
	if b.Verbose != nil {
		a.Verbose = b.Verbose
	}
	if b.NoColor != nil {
		a.NoColor = b.NoColor
	}
	if b.CatalogDir != "" {
		a.CatalogDir = b.CatalogDir
	}
	if b.NoCustom != nil {
		a.NoCustom = b.NoCustom
	}
	if b.Manifest != "" {
		a.Manifest = b.Manifest
	}
	if b.Policy != "" {
		a.Policy = b.Policy
	}
	if b.Suppressions != "" {
		a.Suppressions = b.Suppressions
	}
	if b.FailOn != "" {
		a.FailOn = b.FailOn
	}
	if b.Baseline != "" {
		a.Baseline = b.Baseline
	}
	if b.Format != "" {
		a.Format = b.Format
	}
	if b.StructuralErrorLimit != nil {
		a.StructuralErrorLimit = b.StructuralErrorLimit
	}
	if b.ScopeAware != nil {
		a.ScopeAware = b.ScopeAware
	}
	if b.HistoryKeep != nil {
		a.HistoryKeep = b.HistoryKeep
	}
	return a
}

// applyEnv overlays WARDEN_* variables onto cfg. A malformed numeric or
// boolean value is an error, not a silent fallback.
func applyEnv(cfg Config) (Config, error) {
	var err error
	if cfg.Workers, err = envInt("WARDEN_WORKERS", cfg.Workers); err != nil {
		return Config{}, err
	}
	if cfg.MaxFiles, err = envInt("WARDEN_MAX_FILES", cfg.MaxFiles); err != nil {
		return Config{}, err
	}
	if cfg.MaxBytes, err = envInt64("WARDEN_MAX_BYTES", cfg.MaxBytes); err != nil {
		return Config{}, err
	}
	if cfg.StructuralErrorLimit, err = envInt("WARDEN_STRUCTURAL_ERROR_LIMIT", cfg.StructuralErrorLimit); err != nil {
		return Config{}, err
	}
	if cfg.HistoryKeep, err = envInt("WARDEN_HISTORY_KEEP", cfg.HistoryKeep); err != nil {
		return Config{}, err
	}
	if cfg.Verbose, err = envBool("WARDEN_VERBOSE", cfg.Verbose); err != nil {
		return Config{}, err
	}
	if cfg.NoColor, err = envBool("WARDEN_NO_COLOR", cfg.NoColor); err != nil {
		return Config{}, err
	}
	if cfg.NoCustom, err = envBool("WARDEN_NO_CUSTOM_CATALOG", cfg.NoCustom); err != nil {
		return Config{}, err
	}
	if cfg.ScopeAware, err = envBool("WARDEN_SCOPE_AWARE", cfg.ScopeAware); err != nil {
		return Config{}, err
	}

	cfg.Timeout = envString("WARDEN_TIMEOUT", cfg.Timeout)
	cfg.CatalogDir = envString("WARDEN_CATALOG_DIR", cfg.CatalogDir)
	cfg.Manifest = envString("WARDEN_MANIFEST", cfg.Manifest)
	cfg.Policy = envString("WARDEN_POLICY", cfg.Policy)
	cfg.Suppressions = envString("WARDEN_SUPPRESSIONS", cfg.Suppressions)
	cfg.FailOn = envString("WARDEN_FAIL_ON", cfg.FailOn)
	cfg.Baseline = envString("WARDEN_BASELINE", cfg.Baseline)
	cfg.Format = envString("WARDEN_FORMAT", cfg.Format)

	return cfg, nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func envString(key string, current string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return current
}

func envInt(key string, current *int) (*int, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return current, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return &n, nil
}

func envInt64(key string, current *int64) (*int64, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return current, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return &n, nil
}

func envBool(key string, current *bool) (*bool, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return current, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	return &b, nil
}
