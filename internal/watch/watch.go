// Package watch re-scans a source tree whenever it changes. Events are
// debounced so an editor save burst triggers one scan, and per-file results
// are cached by size and mtime so unchanged files are never re-parsed.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/katiefenn/warden/internal/capability"
	"github.com/katiefenn/warden/internal/catalog"
	"github.com/katiefenn/warden/internal/engine"
	"github.com/katiefenn/warden/internal/manifest"
	"github.com/katiefenn/warden/internal/model"
	"github.com/katiefenn/warden/internal/parse"
	"github.com/katiefenn/warden/internal/scan"
	"github.com/katiefenn/warden/internal/verdict"
	"github.com/katiefenn/warden/internal/worker"
)

const (
	defaultDebounce  = 300 * time.Millisecond
	defaultCacheSize = 512
)

// Directory names never watched or scanned. Mirrors the intake skip list
// for the directories that matter in a live tree.
var skipDirNames = map[string]struct{}{
	".git": {}, ".warden": {}, "node_modules": {}, "bower_components": {},
	"dist": {}, "build": {}, "coverage": {}, ".next": {}, ".cache": {},
}

type Options struct {
	Root            string
	ManifestPath    string
	CatalogDir      string
	NoCustomCatalog bool
	ScopeAware      bool
	Workers         int

	Debounce  time.Duration
	CacheSize int

	Out io.Writer

	// OnResult, when set, receives every scan result instead of Out
	// rendering. Used by tests and by the JSON output mode.
	OnResult func(scan.Result)
}

type cacheKey struct {
	size  int64
	mtime int64
}

type cacheEntry struct {
	key cacheKey
	res model.FileResult
}

// Run watches the tree until ctx is canceled. The first scan happens
// immediately; later scans fire one debounce interval after the last
// filesystem event.
func Run(ctx context.Context, opts Options) error {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	defs := catalog.Builtins()
	if !opts.NoCustomCatalog {
		dirs, dirErr := catalog.ResolveReadDirs(opts.CatalogDir)
		if dirErr != nil {
			return dirErr
		}
		custom, _, loadErr := catalog.LoadCustomDirs(dirs)
		if loadErr != nil {
			return loadErr
		}
		defs, _ = catalog.Merge(defs, custom)
	}
	buildOpts := capability.Options{}
	if opts.ScopeAware {
		buildOpts.Resolver = capability.LexicalResolver{}
	}
	cat, err := capability.Build(defs, buildOpts)
	if err != nil {
		return err
	}

	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		return fmt.Errorf("init result cache: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}
	defer watcher.Close()
	if err := addRecursive(watcher, absRoot); err != nil {
		return fmt.Errorf("watch %s: %w", absRoot, err)
	}

	w := &session{
		opts:     opts,
		root:     absRoot,
		analyzer: engine.New(cat, absRoot),
		caps:     len(cat.Capabilities()),
		cache:    cache,
	}
	w.rescan(ctx)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fire:
			w.rescan(ctx)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if skippedPath(absRoot, ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					_ = addRecursive(watcher, ev.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(opts.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(opts.Out, "[warden] watch error: %v\n", watchErr)
		}
	}
}

type session struct {
	opts     Options
	root     string
	analyzer *engine.Analyzer
	caps     int
	cache    *lru.Cache[string, cacheEntry]
}

// rescan walks the tree, analyzes what changed, and reports the full
// verdict. The cache means a one-file edit re-parses one file.
func (s *session) rescan(ctx context.Context) {
	files, err := listSupported(s.root)
	if err != nil {
		fmt.Fprintf(s.opts.Out, "[warden] list files: %v\n", err)
		return
	}

	results := worker.RunAll(ctx, files, s.analyzeCached, worker.RunOptions{
		MaxParallel: s.opts.Workers,
	})
	if ctx.Err() != nil {
		return
	}

	findings, diagnostics, err := verdict.MergeFiles(results)
	if err != nil {
		fmt.Fprintf(s.opts.Out, "[warden] merge results: %v\n", err)
		return
	}

	decl, err := manifest.Resolve(s.opts.ManifestPath, s.root)
	if err != nil {
		fmt.Fprintf(s.opts.Out, "[warden] load manifest: %v\n", err)
		return
	}

	analyzed, skipped := 0, 0
	for _, r := range results {
		switch r.Status {
		case model.FileAnalyzed:
			analyzed++
		case model.FileSkipped:
			skipped++
		}
	}
	res := scan.Result{
		Result:       verdict.Evaluate(findings, decl),
		Diagnostics:  diagnostics,
		Capabilities: s.caps,
		Analyzed:     analyzed,
		Skipped:      skipped,
	}

	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
		return
	}
	fmt.Fprintf(s.opts.Out, "[warden] %s scanned %d file(s)\n",
		time.Now().Format("15:04:05"), len(files))
	fmt.Fprint(s.opts.Out, scan.FormatHuman(res, false))
}

func (s *session) analyzeCached(ctx context.Context, rel string) model.FileResult {
	info, err := os.Stat(filepath.Join(s.root, rel))
	if err != nil {
		return s.analyzer.AnalyzeFile(ctx, rel)
	}
	key := cacheKey{size: info.Size(), mtime: info.ModTime().UnixNano()}
	if entry, ok := s.cache.Get(rel); ok && entry.key == key {
		return entry.res
	}
	res := s.analyzer.AnalyzeFile(ctx, rel)
	s.cache.Add(rel, cacheEntry{key: key, res: res})
	return res
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if _, skip := skipDirNames[info.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func skippedPath(root, name string) bool {
	rel, err := filepath.Rel(root, name)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if _, skip := skipDirNames[part]; skip {
			return true
		}
	}
	return false
}

// listSupported collects analyzable files under root in sorted order so
// repeated scans merge results deterministically.
func listSupported(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if _, skip := skipDirNames[info.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !parse.Supported(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
