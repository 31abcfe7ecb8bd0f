// Package fingerprint derives the content key under which analysis results
// are cached.
//
// A fingerprint covers every analyzable file below a resource directory
// (relative path and contents), the analysis focus and the analyzer version.
// Any change to one of them yields a new fingerprint, which is what makes
// cache entries safe to reuse without expiry.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SkipDirs are directory names never descended into: VCS metadata, vendored
// dependencies and build output.
var SkipDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "target", "dist", "build",
	"__pycache__", ".venv", ".tox", ".dart_tool",
	".stackscan",
}

// Options tunes a computation.
type Options struct {
	// Exclude holds absolute directories to skip, typically the state
	// directory when it lives inside a resource.
	Exclude []string
}

// Compute returns the hex sha256 fingerprint of dir for focus and version.
// Files are visited in sorted relative-path order, symlinks are not
// followed and unreadable files are an error.
func Compute(dir, focus, version string, opts Options) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("fingerprint %s: not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (slices.Contains(SkipDirs, d.Name()) || excluded(path, opts.Exclude)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(files)

	h := sha256.New()
	fmt.Fprintf(h, "focus\x00%s\x00version\x00%s\x00", focus, version)
	for _, rel := range files {
		if err := hashFile(h, root, rel); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(w io.Writer, root, rel string) error {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}
	// Length-prefix path and contents so concatenations cannot collide.
	fmt.Fprintf(w, "file\x00%s\x00%d\x00", rel, info.Size())
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	return nil
}

func excluded(path string, dirs []string) bool {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
