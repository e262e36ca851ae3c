// Package matrix runs capability audits across several project targets
// from one YAML config and aggregates the outcomes.
package matrix

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const APIVersion = "warden/matrix/v1"

type Config struct {
	APIVersion  string        `yaml:"api_version" json:"api_version"`
	Defaults    TargetOptions `yaml:"defaults" json:"defaults"`
	Targets     []Target      `yaml:"targets" json:"targets"`
	Aggregation Aggregation   `yaml:"aggregation" json:"aggregation"`
}

type TargetOptions struct {
	FailOn          string `yaml:"fail_on,omitempty" json:"fail_on,omitempty"`
	Manifest        string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	Policy          string `yaml:"policy,omitempty" json:"policy,omitempty"`
	Baseline        string `yaml:"baseline,omitempty" json:"baseline,omitempty"`
	CatalogDir      string `yaml:"catalog_dir,omitempty" json:"catalog_dir,omitempty"`
	NoCustomCatalog *bool  `yaml:"no_custom_catalog,omitempty" json:"no_custom_catalog,omitempty"`
	Suppressions    string `yaml:"suppressions,omitempty" json:"suppressions,omitempty"`
	ScopeAware      *bool  `yaml:"scope_aware,omitempty" json:"scope_aware,omitempty"`
	Workers         *int   `yaml:"workers,omitempty" json:"workers,omitempty"`
	MaxFiles        *int   `yaml:"max_files,omitempty" json:"max_files,omitempty"`
	MaxBytes        *int64 `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`
}

type Target struct {
	Name          string `yaml:"name" json:"name"`
	Path          string `yaml:"path" json:"path"`
	TargetOptions `yaml:",inline" json:",inline"`
}

type Aggregation struct {
	FailFast          bool   `yaml:"fail_fast" json:"fail_fast"`
	OverallFailOn     string `yaml:"overall_fail_on,omitempty" json:"overall_fail_on,omitempty"`
	RequireAllTargets *bool  `yaml:"require_all_targets,omitempty" json:"require_all_targets,omitempty"`
}

func DefaultPath() string {
	return filepath.Join(".warden", "matrix.yaml")
}

func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read matrix config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse matrix config: %w", err)
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Normalize(cfg Config) Config {
	cfg.APIVersion = strings.TrimSpace(cfg.APIVersion)
	if cfg.APIVersion == "" {
		cfg.APIVersion = APIVersion
	}
	cfg.Defaults = normalizeTargetOptions(cfg.Defaults)
	cfg.Aggregation.OverallFailOn = strings.ToLower(strings.TrimSpace(cfg.Aggregation.OverallFailOn))
	if cfg.Aggregation.OverallFailOn == "" {
		cfg.Aggregation.OverallFailOn = "fail"
	}
	if cfg.Aggregation.RequireAllTargets == nil {
		value := true
		cfg.Aggregation.RequireAllTargets = &value
	}
	for i := range cfg.Targets {
		cfg.Targets[i].Name = strings.TrimSpace(cfg.Targets[i].Name)
		cfg.Targets[i].Path = strings.TrimSpace(cfg.Targets[i].Path)
		cfg.Targets[i].TargetOptions = normalizeTargetOptions(cfg.Targets[i].TargetOptions)
	}
	return cfg
}

func Validate(cfg Config) error {
	if cfg.APIVersion != APIVersion {
		return fmt.Errorf("unsupported matrix api_version %q", cfg.APIVersion)
	}
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("matrix targets are required")
	}
	seen := map[string]struct{}{}
	for i, target := range cfg.Targets {
		if target.Name == "" {
			return fmt.Errorf("targets[%d].name is required", i)
		}
		if target.Path == "" {
			return fmt.Errorf("targets[%d].path is required", i)
		}
		key := strings.ToLower(target.Name)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate target name %q", target.Name)
		}
		seen[key] = struct{}{}
	}
	if !isStatusOrNone(cfg.Defaults.FailOn) {
		return fmt.Errorf("defaults.fail_on must be fail|warn|none")
	}
	for i, target := range cfg.Targets {
		if !isStatusOrNone(target.FailOn) {
			return fmt.Errorf("targets[%d].fail_on must be fail|warn|none", i)
		}
	}
	if !isStatusOrNone(cfg.Aggregation.OverallFailOn) {
		return fmt.Errorf("aggregation.overall_fail_on must be fail|warn|none")
	}
	return nil
}

func MergeOptions(defaults TargetOptions, override TargetOptions) TargetOptions {
	out := defaults
	if strings.TrimSpace(override.FailOn) != "" && override.FailOn != "none" {
		out.FailOn = override.FailOn
	}
	if strings.TrimSpace(override.Manifest) != "" {
		out.Manifest = override.Manifest
	}
	if strings.TrimSpace(override.Policy) != "" {
		out.Policy = override.Policy
	}
	if strings.TrimSpace(override.Baseline) != "" {
		out.Baseline = override.Baseline
	}
	if strings.TrimSpace(override.CatalogDir) != "" {
		out.CatalogDir = override.CatalogDir
	}
	if override.NoCustomCatalog != nil {
		out.NoCustomCatalog = override.NoCustomCatalog
	}
	if strings.TrimSpace(override.Suppressions) != "" {
		out.Suppressions = override.Suppressions
	}
	if override.ScopeAware != nil {
		out.ScopeAware = override.ScopeAware
	}
	if override.Workers != nil {
		out.Workers = override.Workers
	}
	if override.MaxFiles != nil {
		out.MaxFiles = override.MaxFiles
	}
	if override.MaxBytes != nil {
		out.MaxBytes = override.MaxBytes
	}
	return out
}

func normalizeTargetOptions(in TargetOptions) TargetOptions {
	in.FailOn = strings.ToLower(strings.TrimSpace(in.FailOn))
	if in.FailOn == "" {
		in.FailOn = "none"
	}
	in.Manifest = strings.TrimSpace(in.Manifest)
	in.Policy = strings.TrimSpace(in.Policy)
	in.Baseline = strings.TrimSpace(in.Baseline)
	in.CatalogDir = strings.TrimSpace(in.CatalogDir)
	in.Suppressions = strings.TrimSpace(in.Suppressions)
	return in
}

func isStatusOrNone(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none", "fail", "warn":
		return true
	default:
		return false
	}
}

// SortTargets returns the targets in name order without mutating cfg.
func SortTargets(cfg Config) []Target {
	out := append([]Target{}, cfg.Targets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
