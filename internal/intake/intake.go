// Package intake stages audit input into an isolated workspace. Staging
// copies files instead of analyzing in place so zip inputs, symlink games,
// and mid-run mutations cannot reach past the workspace boundary, and so a
// run's input manifest records exactly what was analyzed.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/safefile"
)

type StageOptions struct {
	InputPath string
	OutDir    string
	MaxFiles  int
	MaxBytes  int64

	// OnlyFiles restricts staging to these input-relative paths. Empty
	// means stage everything.
	OnlyFiles []string

	// IgnoreFile overrides the exclusion file location. Empty means
	// <input>/.wardenignore for folder inputs.
	IgnoreFile string
}

type StageResult struct {
	InputType     string
	InputPath     string
	WorkspacePath string
	Manifest      model.InputManifest
	Cleanup       func() error
}

const (
	dirPerm  = 0o700
	filePerm = 0o600

	// Per-file cap. Matches parse.MaxFileBytes.
	maxFileBytes = 10 * 1024 * 1024

	// IgnoreFileName is the gitignore-style exclusion file honored at the
	// input root.
	IgnoreFileName = ".wardenignore"
)

// Directory names never staged. Tuned for JavaScript projects: dependency
// trees, build output, and coverage dumps dominate file counts without
// carrying first-party code, and the credential directories must never
// enter a workspace that outlives the run.
var skipDirNames = map[string]struct{}{
	".git": {}, ".warden": {}, "node_modules": {}, "bower_components": {},
	"dist": {}, "build": {}, "out": {}, "coverage": {}, ".next": {},
	".nuxt": {}, ".output": {}, ".svelte-kit": {}, ".cache": {}, ".yarn": {},
	".idea": {}, ".vscode": {}, "__pycache__": {}, ".terraform": {},
	".aws": {}, ".ssh": {}, ".gnupg": {},
}

var skipFileExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".svg": {},
	".pdf": {}, ".zip": {}, ".gz": {}, ".tar": {}, ".tgz": {},
	".mp3": {}, ".wav": {}, ".mp4": {}, ".mov": {}, ".avi": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".node": {}, ".wasm": {},
	".map": {},
}

var skipFileNames = map[string]struct{}{
	".DS_Store": {},
}

// stageFilter carries the selection state shared by the folder and zip
// staging paths.
type stageFilter struct {
	only   map[string]struct{}
	ignore *IgnoreRules
}

func Stage(opts StageOptions) (StageResult, error) {
	if strings.TrimSpace(opts.InputPath) == "" {
		return StageResult{}, errors.New("input path is required")
	}
	if opts.MaxFiles <= 0 {
		return StageResult{}, errors.New("max files must be > 0")
	}
	if opts.MaxBytes <= 0 {
		return StageResult{}, errors.New("max bytes must be > 0")
	}

	inAbs, err := filepath.Abs(opts.InputPath)
	if err != nil {
		return StageResult{}, fmt.Errorf("resolve input path: %w", err)
	}
	st, err := os.Stat(inAbs)
	if err != nil {
		return StageResult{}, fmt.Errorf("stat input path: %w", err)
	}

	workspace := filepath.Join(opts.OutDir, "workspace")
	if err := os.MkdirAll(workspace, dirPerm); err != nil {
		return StageResult{}, fmt.Errorf("create workspace: %w", err)
	}
	workspaceAbs, err := filepath.Abs(workspace)
	if err != nil {
		return StageResult{}, fmt.Errorf("resolve workspace path: %w", err)
	}
	outAbs, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return StageResult{}, fmt.Errorf("resolve output path: %w", err)
	}

	res := StageResult{
		InputPath:     inAbs,
		WorkspacePath: workspaceAbs,
		Cleanup: func() error {
			if err := validateCleanupWorkspace(workspaceAbs, outAbs); err != nil {
				return err
			}
			return os.RemoveAll(workspaceAbs)
		},
	}

	inputType := "folder"
	if !st.IsDir() {
		if !strings.EqualFold(filepath.Ext(inAbs), ".zip") {
			return StageResult{}, fmt.Errorf("input must be a folder or .zip file")
		}
		inputType = "zip"
	}
	res.InputType = inputType

	ignorePath := opts.IgnoreFile
	if ignorePath == "" && st.IsDir() {
		ignorePath = filepath.Join(inAbs, IgnoreFileName)
	}
	var ignore *IgnoreRules
	if ignorePath != "" {
		ignore, err = LoadIgnoreFile(ignorePath)
		if err != nil {
			return StageResult{}, fmt.Errorf("load ignore file: %w", err)
		}
	}
	filter := stageFilter{only: buildOnlySet(opts.OnlyFiles), ignore: ignore}

	manifest := model.InputManifest{
		RootPath:        workspace,
		InputPath:       inAbs,
		InputType:       inputType,
		SkippedByReason: map[string]int{},
		GeneratedAt:     time.Now().UTC(),
		Files:           make([]model.ManifestFile, 0, min(1024, opts.MaxFiles)),
	}

	if st.IsDir() {
		if err := stageFolderToWorkspace(inAbs, workspace, &manifest, opts.MaxFiles, opts.MaxBytes, filter); err != nil {
			return StageResult{}, err
		}
	} else {
		if err := stageZipToWorkspace(inAbs, workspace, &manifest, opts.MaxFiles, opts.MaxBytes, filter); err != nil {
			return StageResult{}, err
		}
	}

	sort.Slice(manifest.Files, func(i, j int) bool {
		return manifest.Files[i].Path < manifest.Files[j].Path
	})
	res.Manifest = manifest

	return res, nil
}

func buildOnlySet(paths []string) map[string]struct{} {
	if len(paths) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = filepath.ToSlash(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

func stageFolderToWorkspace(srcRoot string, dstRoot string, manifest *model.InputManifest, maxFiles int, maxBytes int64, filter stageFilter) error {
	return filepath.WalkDir(srcRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == srcRoot {
			return nil
		}

		rel, relErr := filepath.Rel(srcRoot, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.Type()&os.ModeSymlink != 0 {
			manifest.SkippedByReason["symlink"]++
			manifest.SkippedFiles++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if _, skip := skipDirNames[name]; skip {
				manifest.SkippedByReason["skip_dir"]++
				return filepath.SkipDir
			}
			if filter.ignore.ShouldIgnore(rel, true) {
				manifest.SkippedByReason["wardenignore"]++
				return filepath.SkipDir
			}
			return nil
		}

		// Selection, not exclusion: unselected files do not count as
		// skipped in the manifest.
		if filter.only != nil {
			if _, ok := filter.only[rel]; !ok {
				return nil
			}
		}

		info, infoErr := os.Lstat(path)
		if infoErr != nil {
			return infoErr
		}
		if info.Mode()&os.ModeSymlink != 0 {
			manifest.SkippedByReason["symlink"]++
			manifest.SkippedFiles++
			return nil
		}
		if !info.Mode().IsRegular() {
			manifest.SkippedByReason["non_regular"]++
			manifest.SkippedFiles++
			return nil
		}
		if hardLinkCount(info) > 1 {
			manifest.SkippedByReason["hardlink"]++
			manifest.SkippedFiles++
			return nil
		}

		if reason, skip := skipFile(name, rel, info.Size(), info.Mode()); skip {
			manifest.SkippedByReason[reason]++
			manifest.SkippedFiles++
			if reason == "security_relevant_excluded" {
				manifest.SecurityRelevantSkipped++
			}
			return nil
		}
		if filter.ignore.ShouldIgnore(rel, false) {
			manifest.SkippedByReason["wardenignore"]++
			manifest.SkippedFiles++
			return nil
		}

		targetPath, err := workspaceTargetPath(dstRoot, rel)
		if err != nil {
			return err
		}
		if manifest.IncludedFiles+1 > maxFiles {
			return fmt.Errorf("included file count exceeds limit: %d > %d", manifest.IncludedFiles+1, maxFiles)
		}

		copied, err := copyFileWithLimit(path, targetPath, maxBytes-manifest.IncludedBytes, info, srcRoot)
		if err != nil {
			return err
		}

		manifest.Files = append(manifest.Files, model.ManifestFile{Path: rel, Size: copied})
		manifest.IncludedFiles++
		manifest.IncludedBytes += copied
		return nil
	})
}

func skipFile(name string, rel string, size int64, mode os.FileMode) (reason string, skip bool) {
	if mode&os.ModeSymlink != 0 {
		return "symlink", true
	}
	if isSensitiveFileName(name) || isSensitiveFilePath(rel) {
		return "security_relevant_excluded", true
	}
	if _, ok := skipFileNames[name]; ok {
		return "skip_name", true
	}
	if size == 0 {
		return "empty", true
	}
	if size > maxFileBytes {
		return "file_too_large", true
	}
	if isMinifiedName(name) {
		return "minified", true
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := skipFileExts[ext]; ok {
		return "skip_ext", true
	}
	if hasSkippedDirComponent(rel) {
		return "skip_dir", true
	}
	return "", false
}

// isMinifiedName flags bundler output by name. Minified bundles are
// machine-generated, routinely megabytes on one line, and their findings
// would drown the author's own code.
func isMinifiedName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{".min.js", ".min.mjs", ".min.cjs", ".bundle.js", ".production.js"} {
		if strings.HasSuffix(lower, marker) {
			return true
		}
	}
	return false
}

func isSensitiveFileName(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	switch name {
	case ".env", ".npmrc", ".netrc", ".pypirc", "credentials", "kubeconfig", "id_rsa", "id_ed25519":
		return true
	}
	if strings.HasPrefix(name, ".env.") || strings.HasPrefix(name, "secrets.") {
		return true
	}
	if strings.HasSuffix(name, "credentials.json") {
		return true
	}
	switch filepath.Ext(name) {
	case ".pem", ".key", ".p12", ".pfx", ".crt":
		return true
	}
	return false
}

// isSensitiveFilePath catches credential files identified by their parent
// directory rather than their own name.
func isSensitiveFilePath(rel string) bool {
	rel = strings.ToLower(filepath.ToSlash(strings.TrimSpace(rel)))
	if rel == "" {
		return false
	}
	parts := strings.Split(rel, "/")
	for i := 0; i+1 < len(parts); i++ {
		dir, base := parts[i], parts[i+1]
		switch {
		case dir == ".aws" && (base == "credentials" || base == "config"):
			return true
		case dir == ".kube" && base == "config":
			return true
		case dir == ".docker" && base == "config.json":
			return true
		}
	}
	return false
}

func hasSkippedDirComponent(rel string) bool {
	parts := strings.Split(filepath.ToSlash(strings.TrimSpace(rel)), "/")
	for _, part := range parts {
		if part == "" {
			continue
		}
		if _, ok := skipDirNames[part]; ok {
			return true
		}
	}
	return false
}

func workspaceTargetPath(dstRoot string, rel string) (string, error) {
	cleanRel := filepath.Clean(filepath.FromSlash(rel))
	if cleanRel == "." || cleanRel == "" {
		return "", fmt.Errorf("invalid target relative path")
	}
	if strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) || cleanRel == ".." {
		return "", fmt.Errorf("target path escapes workspace: %s", rel)
	}

	targetPath := filepath.Join(dstRoot, cleanRel)
	targetAbs, err := filepath.Abs(targetPath)
	if err != nil {
		return "", fmt.Errorf("resolve workspace target: %w", err)
	}
	rootAbs, err := filepath.Abs(dstRoot)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	if !strings.HasPrefix(targetAbs, rootAbs+string(filepath.Separator)) && targetAbs != rootAbs {
		return "", fmt.Errorf("target path escapes workspace root: %s", rel)
	}
	return targetAbs, nil
}

func validateCleanupWorkspace(workspaceAbs string, outAbs string) error {
	workspaceAbs = filepath.Clean(strings.TrimSpace(workspaceAbs))
	outAbs = filepath.Clean(strings.TrimSpace(outAbs))
	if workspaceAbs == "" || workspaceAbs == "." {
		return fmt.Errorf("invalid workspace cleanup path")
	}
	if filepath.Base(workspaceAbs) != "workspace" {
		return fmt.Errorf("refusing cleanup for non-workspace path: %s", workspaceAbs)
	}
	if outAbs == "" || outAbs == "." {
		return fmt.Errorf("invalid output root for cleanup")
	}
	prefix := outAbs + string(filepath.Separator)
	if workspaceAbs != outAbs && !strings.HasPrefix(workspaceAbs, prefix) {
		return fmt.Errorf("workspace path escapes output root: %s", workspaceAbs)
	}
	return nil
}

func copyFileWithLimit(srcPath string, dstPath string, byteBudget int64, expected os.FileInfo, srcRoot string) (int64, error) {
	srcAbs, err := filepath.Abs(srcPath)
	if err != nil {
		return 0, fmt.Errorf("resolve source file %s: %w", srcPath, err)
	}
	rootAbs, err := filepath.Abs(srcRoot)
	if err != nil {
		return 0, fmt.Errorf("resolve source root %s: %w", srcRoot, err)
	}
	if !pathWithinRoot(srcAbs, rootAbs) {
		return 0, fmt.Errorf("source file escapes root: %s", srcPath)
	}

	if expected == nil {
		return 0, fmt.Errorf("missing source metadata for %s", srcPath)
	}
	if expected.Mode()&os.ModeSymlink != 0 || !expected.Mode().IsRegular() {
		return 0, fmt.Errorf("source file must be regular and not symlink: %s", srcPath)
	}
	if hardLinkCount(expected) > 1 {
		return 0, fmt.Errorf("hard-linked source file is not allowed: %s", srcPath)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source file %s: %w", srcPath, err)
	}
	defer src.Close()

	opened, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source file %s: %w", srcPath, err)
	}
	if opened.Mode()&os.ModeSymlink != 0 || !opened.Mode().IsRegular() {
		return 0, fmt.Errorf("source file must be regular and not symlink: %s", srcPath)
	}
	if hardLinkCount(opened) > 1 {
		return 0, fmt.Errorf("hard-linked source file is not allowed: %s", srcPath)
	}
	if !os.SameFile(expected, opened) {
		return 0, fmt.Errorf("source file changed during copy: %s", srcPath)
	}

	return copyReaderToPathWithLimit(src, dstPath, byteBudget)
}

func copyReaderToPathWithLimit(src io.Reader, dstPath string, byteBudget int64) (int64, error) {
	if byteBudget <= 0 {
		return 0, fmt.Errorf("included byte size exceeds limit: no remaining byte budget")
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), dirPerm); err != nil {
		return 0, fmt.Errorf("create workspace parent dir: %w", err)
	}

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, fmt.Errorf("create workspace file %s: %w", dstPath, err)
	}
	defer dst.Close()

	limited := &io.LimitedReader{R: src, N: byteBudget + 1}
	n, err := io.Copy(dst, limited)
	if err != nil {
		_ = os.Remove(dstPath)
		return 0, fmt.Errorf("copy workspace file %s: %w", dstPath, err)
	}
	if n > byteBudget {
		_ = os.Remove(dstPath)
		return 0, fmt.Errorf("included byte size exceeds limit: %d > %d", n, byteBudget)
	}
	if n == 0 {
		_ = os.Remove(dstPath)
		return 0, fmt.Errorf("included byte size exceeds limit: zero-size files are not allowed")
	}
	return n, nil
}

// WriteManifest persists the input manifest alongside the other run
// artifacts.
func WriteManifest(path string, manifest model.InputManifest) error {
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := safefile.WriteFileAtomic(path, b, filePerm); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func hardLinkCount(info os.FileInfo) uint64 {
	if info == nil || info.Sys() == nil {
		return 0
	}
	v := reflect.ValueOf(info.Sys())
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if !v.IsValid() {
		return 0
	}
	field := v.FieldByName("Nlink")
	if !field.IsValid() {
		return 0
	}
	switch field.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return field.Uint()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := field.Int()
		if n > 0 {
			return uint64(n)
		}
	}
	return 0
}

func pathWithinRoot(path string, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
