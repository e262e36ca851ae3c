package suppress

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/katiefenn/warden/internal/parse"
)

const allowMarker = "warden:allow"

// skipDirNames are directories never scanned for allow comments. Staged
// workspaces are already filtered, but the scan command runs in place.
var skipDirNames = map[string]struct{}{
	".git":             {},
	".warden":          {},
	"node_modules":     {},
	"bower_components": {},
	"dist":             {},
	"build":            {},
	"coverage":         {},
}

// ScanInline walks root and collects warden:allow annotations from every
// analyzable source file. Returns a map from slash-separated relative path
// to the allows found in that file.
func ScanInline(root string) (map[string][]InlineAllow, error) {
	result := make(map[string][]InlineAllow)

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are not suppression carriers
		}
		if info.IsDir() {
			if _, skip := skipDirNames[filepath.Base(path)]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !parse.Supported(path) {
			return nil
		}
		// Matches the analyzer's per-file cap so any analyzed file can
		// carry an allow comment.
		if info.Size() > parse.MaxFileBytes {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		allows := scanFile(path, rel)
		if len(allows) > 0 {
			result[rel] = allows
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanFile reads a single file and extracts warden:allow annotations.
func scanFile(absPath, relPath string) []InlineAllow {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var result []InlineAllow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		capability, reason, ok := parseAllowComment(scanner.Text())
		if !ok {
			continue
		}
		result = append(result, InlineAllow{
			Capability: capability,
			Reason:     reason,
			File:       relPath,
			Line:       lineNum,
		})
	}
	return result
}

// parseAllowComment extracts the capability and optional reason from a line
// containing "warden:allow <capability>" or
// "warden:allow <capability> -- reason". The marker must sit inside a
// comment; trailing comments after code count.
func parseAllowComment(line string) (capability, reason string, ok bool) {
	lower := strings.ToLower(line)
	idx := strings.Index(lower, allowMarker)
	if idx < 0 {
		return "", "", false
	}
	if !insideComment(line[:idx]) {
		return "", "", false
	}

	rest := strings.TrimSpace(line[idx+len(allowMarker):])
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "*/"))
	if rest == "" {
		return "", "", false
	}

	if dashIdx := strings.Index(rest, " -- "); dashIdx >= 0 {
		capability = strings.TrimSpace(rest[:dashIdx])
		reason = strings.TrimSpace(rest[dashIdx+4:])
	} else {
		capability = strings.TrimSpace(rest)
	}

	if capability == "" || strings.ContainsAny(capability, " \t") {
		return "", "", false
	}
	// Reject a standalone wildcard; allows must name a capability.
	if capability == "*" {
		fmt.Fprintf(os.Stderr, "[warden] warning: ignoring wildcard allow 'warden:allow *'; name a specific capability\n")
		return "", "", false
	}
	return capability, reason, true
}

// insideComment reports whether the text before the marker opens a comment.
// A lone * covers continuation lines of block comments.
func insideComment(before string) bool {
	if strings.Contains(before, "//") || strings.Contains(before, "/*") {
		return true
	}
	return strings.TrimSpace(before) == "*"
}
