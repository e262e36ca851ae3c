package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

func ResolveDir(raw string) (string, error) {
	return ResolveWriteDir(raw)
}

// ResolveReadDirs returns the catalog directories to load custom definitions
// from, in precedence order: an explicit dir if given, otherwise the repo's
// .warden/catalog followed by ~/.warden/catalog.
func ResolveReadDirs(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		dir, err := resolvePath(raw)
		if err != nil {
			return nil, err
		}
		return []string{dir}, nil
	}

	dirs := make([]string, 0, 2)
	repoRoot, err := FindRepoRootFromCWD()
	if err != nil {
		return nil, err
	}
	if repoRoot != "" {
		dirs = append(dirs, filepath.Join(repoRoot, ".warden", "catalog"))
	}

	homeDir, err := resolvePath("~/.warden/catalog")
	if err != nil {
		return nil, err
	}
	dirs = append(dirs, homeDir)

	return uniquePaths(dirs), nil
}

func ResolveWriteDir(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		return resolvePath(raw)
	}

	repoRoot, err := FindRepoRootFromCWD()
	if err != nil {
		return "", err
	}
	if repoRoot != "" {
		return filepath.Join(repoRoot, ".warden", "catalog"), nil
	}
	return resolvePath("~/.warden/catalog")
}

func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}

func CapabilityFilePath(dir string, name string) string {
	return filepath.Join(dir, name+".capability.yaml")
}

// ReadDefinition loads, normalizes, and validates one definition file. The
// file is rejected if it is a symlink, fails schema validation, or fails
// semantic validation.
func ReadDefinition(path string) (Definition, error) {
	def, err := readRawDefinition(path)
	if err != nil {
		return Definition{}, err
	}
	def = NormalizeDefinition(def)
	if err := ValidateDefinition(def); err != nil {
		return Definition{}, fmt.Errorf("invalid capability %s: %w", path, err)
	}
	return def, nil
}

// ReadDefinitionStrict is ReadDefinition without the authoring shortcuts:
// the match target (module or member) must be spelled out in the file.
// Normalization back-fills `module: <name>` for a hand-typed `catalog add`;
// a pack file reviewed by a third party gets no such inference.
func ReadDefinitionStrict(path string) (Definition, error) {
	raw, err := readRawDefinition(path)
	if err != nil {
		return Definition{}, err
	}
	if err := validateExplicitMatch(raw); err != nil {
		return Definition{}, fmt.Errorf("invalid capability %s: %w", path, err)
	}
	def := NormalizeDefinition(raw)
	if err := ValidateDefinition(def); err != nil {
		return Definition{}, fmt.Errorf("invalid capability %s: %w", path, err)
	}
	return def, nil
}

func readRawDefinition(path string) (Definition, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read capability %s: %w", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return Definition{}, fmt.Errorf("refusing symlinked capability file: %s", path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read capability %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(b, &def); err != nil {
		return Definition{}, fmt.Errorf("parse capability %s: %w", path, err)
	}
	if err := ValidateSchema(b); err != nil {
		return Definition{}, fmt.Errorf("invalid capability %s: %w", path, err)
	}
	return def, nil
}

func validateExplicitMatch(raw Definition) error {
	switch Family(strings.ToLower(strings.TrimSpace(string(raw.Family)))) {
	case FamilyModuleLoad:
		if strings.TrimSpace(raw.Module) == "" {
			return errors.New("module is required for family=module-load")
		}
	case FamilyGlobalMember:
		if strings.TrimSpace(raw.Member) == "" {
			return errors.New("member is required for family=global-member")
		}
	}
	return nil
}

func WriteDefinition(dir string, def Definition, overwrite bool) (string, error) {
	def = NormalizeDefinition(def)
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	if err := ValidateDefinition(def); err != nil {
		return "", err
	}

	if err := EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create catalog dir: %w", err)
	}

	path := CapabilityFilePath(dir, def.Name)
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("refusing symlinked capability file: %s", path)
		}
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("capability %q already exists at %s", def.Name, path)
		}
	}

	b, err := yaml.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshal capability %q: %w", def.Name, err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("write capability %s: %w", path, err)
	}
	return path, nil
}

func UpdateStatus(dir string, name string, status Status) (string, error) {
	name, err := normalizeAndValidateName(name)
	if err != nil {
		return "", err
	}
	if err := validateStatus(status); err != nil {
		return "", err
	}

	path, err := resolveExistingCapabilityPath(dir, name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("read capability %s: %w", CapabilityFilePath(dir, name), err)
		}
		return "", err
	}
	return updateStatusAtPath(path, status)
}

func UpdateStatusInDirs(dirs []string, name string, status Status) (string, error) {
	name, err := normalizeAndValidateName(name)
	if err != nil {
		return "", err
	}
	if err := validateStatus(status); err != nil {
		return "", err
	}

	searched := make([]string, 0, len(dirs))
	for _, dir := range uniquePaths(dirs) {
		path, pathErr := resolveExistingCapabilityPath(dir, name)
		if pathErr == nil {
			return updateStatusAtPath(path, status)
		}
		if errors.Is(pathErr, os.ErrNotExist) {
			searched = append(searched, dir)
			continue
		}
		return "", pathErr
	}

	if len(searched) == 0 {
		return "", fmt.Errorf("capability %q not found (no directories searched)", name)
	}
	return "", fmt.Errorf("capability %q not found in: %s", name, strings.Join(searched, ", "))
}

func LoadCustomDir(dir string) ([]Definition, []string, error) {
	items, warnings, err := loadCustomDirWithPaths(dir)
	if err != nil {
		return nil, nil, err
	}
	out := make([]Definition, 0, len(items))
	for _, item := range items {
		out = append(out, item.def)
	}
	return out, warnings, nil
}

// LoadCustomDirs loads every definition in the given dirs. Earlier dirs win
// name collisions; duplicates and unreadable files surface as warnings, not
// errors, so one broken file never blocks an audit.
func LoadCustomDirs(dirs []string) ([]Definition, []string, error) {
	out := make([]Definition, 0, 16)
	warnings := make([]string, 0, 8)
	seen := make(map[string]string, 16)

	for _, dir := range uniquePaths(dirs) {
		items, itemWarnings, err := loadCustomDirWithPaths(dir)
		if err != nil {
			return nil, nil, err
		}
		warnings = append(warnings, itemWarnings...)

		for _, item := range items {
			if loadedFrom, exists := seen[item.def.Name]; exists {
				warnings = append(warnings, fmt.Sprintf(
					"duplicate capability %q at %s ignored (already loaded from %s)",
					item.def.Name,
					item.path,
					loadedFrom,
				))
				continue
			}
			seen[item.def.Name] = item.path
			out = append(out, item.def)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, warnings, nil
}

type loadedDefinition struct {
	def  Definition
	path string
}

func loadCustomDirWithPaths(dir string) ([]loadedDefinition, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read catalog dir: %w", err)
	}

	out := make([]loadedDefinition, 0, len(entries))
	warnings := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".capability.yaml") && !strings.HasSuffix(name, ".capability.yml") {
			continue
		}

		path := filepath.Join(dir, name)
		def, loadErr := ReadDefinition(path)
		if loadErr != nil {
			warnings = append(warnings, loadErr.Error())
			continue
		}

		if def.Source != SourcePack {
			def.Source = SourceCustom
		}
		out = append(out, loadedDefinition{
			def:  def,
			path: path,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].def.Name < out[j].def.Name })
	return out, warnings, nil
}

func resolvePath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		switch raw {
		case "~":
			raw = home
		case "~/":
			raw = home + string(os.PathSeparator)
		default:
			raw = filepath.Join(home, strings.TrimPrefix(raw, "~/"))
		}
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("resolve catalog dir: %w", err)
	}
	return abs, nil
}

// FindRepoRootFromCWD walks up from the working directory looking for a
// .git entry. It returns "" without error when no repo encloses the cwd.
func FindRepoRootFromCWD() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve cwd: %w", err)
	}
	return findRepoRoot(cwd)
}

func findRepoRoot(start string) (string, error) {
	current, err := filepath.Abs(strings.TrimSpace(start))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	for {
		gitPath := filepath.Join(current, ".git")
		_, statErr := os.Stat(gitPath)
		if statErr == nil {
			return current, nil
		} else if !os.IsNotExist(statErr) {
			return "", fmt.Errorf("read git metadata %s: %w", gitPath, statErr)
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", nil
}

func uniquePaths(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, path := range in {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		path = filepath.Clean(path)
		if _, exists := seen[path]; exists {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}

// Capability names stay case-sensitive: XMLHttpRequest and xmlhttprequest
// are different members.
func normalizeAndValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("name is required")
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("name must match ^[a-zA-Z_$][a-zA-Z0-9_$./-]{0,63}$")
	}
	return name, nil
}

func validateStatus(status Status) error {
	switch status {
	case StatusEnabled, StatusDisabled:
		return nil
	default:
		return fmt.Errorf("invalid status %q", status)
	}
}

func resolveExistingCapabilityPath(dir string, name string) (string, error) {
	candidates := []string{
		filepath.Join(dir, name+".capability.yaml"),
		filepath.Join(dir, name+".capability.yml"),
	}
	for _, path := range candidates {
		info, err := os.Lstat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("read capability %s: %w", path, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("refusing symlinked capability file: %s", path)
		}
		if info.IsDir() {
			return "", fmt.Errorf("capability path is a directory: %s", path)
		}
		return path, nil
	}
	return "", os.ErrNotExist
}

func updateStatusAtPath(path string, status Status) (string, error) {
	def, err := ReadDefinition(path)
	if err != nil {
		return "", err
	}
	def.Status = status
	def.UpdatedAt = time.Now().UTC()
	def = NormalizeDefinition(def)
	if err := ValidateDefinition(def); err != nil {
		return "", err
	}

	b, err := yaml.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshal capability %q: %w", def.Name, err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", fmt.Errorf("write capability %s: %w", path, err)
	}
	return path, nil
}
