package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the stackscan directory.
const DirName = ".stackscan"

// Target returns the absolute path of the .stackscan directory to use,
// creating it if needed. Order of precedence:
//  1. Provided override
//  2. Local ./.stackscan/ dir
//  3. Home ~/.stackscan/ dir
func Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, DirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating stackscan directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
