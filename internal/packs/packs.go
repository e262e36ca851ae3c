// Package packs manages shareable capability-definition packs: registered
// sources (local paths or git URLs), installation into the catalog under a
// pack namespace, and a digest lockfile so CI can verify that installed
// definitions match what was reviewed.
package packs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/git"
)

// Source is a registered pack source.
type Source struct {
	Name    string    `yaml:"name" json:"name"`
	URL     string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path    string    `yaml:"path,omitempty" json:"path,omitempty"`
	AddedAt time.Time `yaml:"added_at,omitempty" json:"added_at,omitempty"`
}

// Config holds the registered pack sources.
type Config struct {
	Sources []Source `yaml:"sources" json:"sources"`
}

// PackMeta describes one pack inside a source.
type PackMeta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
}

// DefaultConfigPath returns the default packs.yaml location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".warden", "packs.yaml")
}

// DefaultSourcesDir returns the directory git sources are cloned into.
func DefaultSourcesDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".warden", "packs")
}

// LoadConfig reads the packs config. A missing file is an empty config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read packs config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse packs config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig writes the packs config to disk.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal packs config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// ResolveSource takes user input (local path, GitHub shorthand, or full git
// URL) and returns a normalized name plus either a clonable URL or a local
// path.
func ResolveSource(input string) Source {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "://") || strings.HasPrefix(input, "git@") {
		return Source{Name: nameFromURL(input), URL: input}
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		abs, _ := filepath.Abs(input)
		return Source{Name: filepath.Base(abs), Path: abs}
	}
	// GitHub shorthand: owner/repo
	if parts := strings.SplitN(input, "/", 2); len(parts) == 2 {
		return Source{
			Name: input,
			URL:  fmt.Sprintf("https://github.com/%s/%s.git", parts[0], parts[1]),
		}
	}
	return Source{Name: input, Path: input}
}

func nameFromURL(url string) string {
	if strings.HasPrefix(url, "git@") {
		if parts := strings.SplitN(url, ":", 2); len(parts) == 2 {
			return strings.TrimSuffix(parts[1], ".git")
		}
	}
	cleaned := strings.TrimSuffix(url, ".git")
	parts := strings.Split(cleaned, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	return url
}

// FindSource looks up a source by name (case-insensitive).
func FindSource(cfg *Config, name string) (Source, bool) {
	for _, s := range cfg.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Source{}, false
}

// RemoveSource removes a source by name and reports whether it existed.
func RemoveSource(cfg *Config, name string) bool {
	for i, s := range cfg.Sources {
		if strings.EqualFold(s.Name, name) {
			cfg.Sources = append(cfg.Sources[:i], cfg.Sources[i+1:]...)
			return true
		}
	}
	return false
}

// SourceDir returns the local directory holding a source's content. Git
// sources live under sourcesDir keyed by a sanitized name.
func SourceDir(sourcesDir string, s Source) string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(sourcesDir, strings.ReplaceAll(s.Name, "/", "--"))
}

// Sync makes the source's local directory current: clone on first use,
// fast-forward pull afterwards. Local-path sources never need syncing.
func Sync(sourcesDir string, s Source) error {
	if s.Path != "" {
		return nil
	}
	dir := SourceDir(sourcesDir, s)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return git.Pull(dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return fmt.Errorf("create sources dir: %w", err)
	}
	return git.ShallowClone(s.URL, dir)
}

// ListPacks returns the packs inside a source directory. Packs live under
// <sourceDir>/packs/<name>/ with an optional pack.yaml.
func ListPacks(sourceDir string) ([]PackMeta, error) {
	packsDir := filepath.Join(sourceDir, "packs")
	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read packs dir: %w", err)
	}

	var packs []PackMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta := PackMeta{Name: e.Name()}
		if data, readErr := os.ReadFile(filepath.Join(packsDir, e.Name(), "pack.yaml")); readErr == nil {
			_ = yaml.Unmarshal(data, &meta)
			if meta.Name == "" {
				meta.Name = e.Name()
			}
		}
		packs = append(packs, meta)
	}
	return packs, nil
}

// FindPack locates a pack directory by name within a source.
func FindPack(sourceDir, packName string) (string, bool) {
	packDir := filepath.Join(sourceDir, "packs", packName)
	info, err := os.Stat(packDir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return packDir, true
}

// Install copies a pack's capability definitions into the catalog dir under
// the pack namespace. Every definition is re-read and re-written through
// the catalog layer so a hostile pack file cannot smuggle extra fields, and
// each installed definition is stamped source=pack.
func Install(packDir, catalogDir, packName string) (int, error) {
	destDir := filepath.Join(catalogDir, "packs", packName)
	if err := catalog.EnsureDir(destDir); err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(packDir)
	if err != nil {
		return 0, fmt.Errorf("read pack dir: %w", err)
	}

	installed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".capability.yaml") {
			continue
		}
		def, readErr := catalog.ReadDefinitionStrict(filepath.Join(packDir, e.Name()))
		if readErr != nil {
			return installed, fmt.Errorf("pack %s: %w", packName, readErr)
		}
		def.Source = catalog.SourcePack
		def.Pack = packName
		if _, writeErr := catalog.WriteDefinition(destDir, def, true); writeErr != nil {
			return installed, fmt.Errorf("install %s: %w", def.Name, writeErr)
		}
		installed++
	}
	return installed, nil
}

// Digest hashes a pack directory: sha256 over each definition file's name
// and content, in sorted order, so the digest is stable across filesystems.
func Digest(packDir string) (string, error) {
	entries, err := os.ReadDir(packDir)
	if err != nil {
		return "", fmt.Errorf("read pack dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".capability.yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		f, openErr := os.Open(filepath.Join(packDir, name))
		if openErr != nil {
			return "", openErr
		}
		_, _ = io.WriteString(h, name+"\n")
		if _, copyErr := io.Copy(h, f); copyErr != nil {
			f.Close()
			return "", copyErr
		}
		f.Close()
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), nil
}
