package packs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/katiefenn/warden/internal/safefile"
)

const LockAPIVersion = "warden/packs-lock/v1"

// LockedPack pins one installed pack to the digest that was reviewed.
type LockedPack struct {
	Name      string    `yaml:"name" json:"name"`
	Source    string    `yaml:"source" json:"source"`
	SourceURL string    `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	Version   string    `yaml:"version,omitempty" json:"version,omitempty"`
	Digest    string    `yaml:"digest,omitempty" json:"digest,omitempty"`
	LockedAt  time.Time `yaml:"locked_at,omitempty" json:"locked_at,omitempty"`
}

type LockFile struct {
	APIVersion string       `yaml:"api_version" json:"api_version"`
	Packs      []LockedPack `yaml:"packs" json:"packs"`
}

func DefaultLockPath() string {
	return filepath.Join(".warden", "packs.lock.yaml")
}

func LoadLock(path string) (LockFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultLockPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LockFile{APIVersion: LockAPIVersion}, nil
		}
		return LockFile{}, fmt.Errorf("read packs lock file: %w", err)
	}
	var lock LockFile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return LockFile{}, fmt.Errorf("parse packs lock file: %w", err)
	}
	if lock.APIVersion != "" && strings.TrimSpace(lock.APIVersion) != LockAPIVersion {
		return LockFile{}, fmt.Errorf("unsupported packs lock api_version %q", lock.APIVersion)
	}
	return NormalizeLock(lock), nil
}

func SaveLock(path string, lock LockFile) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultLockPath()
	}
	lock = NormalizeLock(lock)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create packs lock dir: %w", err)
	}
	b, err := yaml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("marshal packs lock file: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, b, 0o600); err != nil {
		return fmt.Errorf("write packs lock file: %w", err)
	}
	return nil
}

// NormalizeLock trims, dedupes by name, and sorts so the lockfile diffs
// cleanly under version control.
func NormalizeLock(lock LockFile) LockFile {
	lock.APIVersion = LockAPIVersion
	if len(lock.Packs) == 0 {
		return lock
	}
	seen := map[string]struct{}{}
	out := make([]LockedPack, 0, len(lock.Packs))
	for _, pack := range lock.Packs {
		pack.Name = strings.TrimSpace(pack.Name)
		if pack.Name == "" {
			continue
		}
		pack.Source = strings.TrimSpace(pack.Source)
		pack.SourceURL = strings.TrimSpace(pack.SourceURL)
		pack.Version = strings.TrimSpace(pack.Version)
		pack.Digest = strings.TrimSpace(pack.Digest)
		key := strings.ToLower(pack.Name)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pack)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	lock.Packs = out
	return lock
}

func FindLockedPack(lock LockFile, name string) (LockedPack, bool) {
	name = strings.TrimSpace(name)
	for _, pack := range lock.Packs {
		if strings.EqualFold(pack.Name, name) {
			return pack, true
		}
	}
	return LockedPack{}, false
}

func UpsertLockedPack(lock *LockFile, pack LockedPack) {
	if lock == nil {
		return
	}
	pack.Name = strings.TrimSpace(pack.Name)
	if pack.Name == "" {
		return
	}
	for i := range lock.Packs {
		if strings.EqualFold(lock.Packs[i].Name, pack.Name) {
			lock.Packs[i] = pack
			return
		}
	}
	lock.Packs = append(lock.Packs, pack)
}

// VerifyInstalled compares the digest of each installed pack directory
// under catalogDir against the lock. Returns one message per mismatch or
// missing pack; empty means everything checks out.
func VerifyInstalled(lock LockFile, catalogDir string) []string {
	var problems []string
	for _, locked := range lock.Packs {
		dir := filepath.Join(catalogDir, "packs", locked.Name)
		if _, err := os.Stat(dir); err != nil {
			problems = append(problems, fmt.Sprintf("pack %q is locked but not installed", locked.Name))
			continue
		}
		digest, err := Digest(dir)
		if err != nil {
			problems = append(problems, fmt.Sprintf("pack %q: digest failed: %v", locked.Name, err))
			continue
		}
		if locked.Digest != "" && digest != locked.Digest {
			problems = append(problems, fmt.Sprintf("pack %q: installed digest %s does not match locked %s",
				locked.Name, digest, locked.Digest))
		}
	}
	return problems
}
