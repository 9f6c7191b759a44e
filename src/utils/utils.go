package utils

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

var errNoModuleRoot = errors.New("go.mod not found above " + sourceDir())

func sourceDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Dir(filename)
}

// ProjectRoot walks up from this source file to the directory holding go.mod.
func ProjectRoot() (string, error) {
	dir := sourceDir()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoModuleRoot
		}
		dir = parent
	}
}

// FindProjectRoot is ProjectRoot for test helpers; it panics outside a checkout.
func FindProjectRoot() string {
	root, err := ProjectRoot()
	if err != nil {
		panic(err)
	}
	return root
}

// MigrationsURL is the golang-migrate source URL of the relay table migrations.
func MigrationsURL() string {
	return "file://" + filepath.Join(FindProjectRoot(), "migrations")
}
