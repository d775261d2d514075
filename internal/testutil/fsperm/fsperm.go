// Package fsperm holds test assertions for on-disk secret files.
package fsperm

import (
	"os"
	"runtime"
	"testing"
)

// AssertMode fails t unless path exists with exactly the given permission
// bits. wantDir selects whether path must be a directory or a regular file.
func AssertMode(t testing.TB, path string, wantDir bool, want os.FileMode) {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if info.IsDir() != wantDir {
		t.Fatalf("%s: dir=%v, want dir=%v", path, info.IsDir(), wantDir)
	}
	// Windows reports synthetic modes.
	if runtime.GOOS == "windows" {
		return
	}
	if perm := info.Mode().Perm(); perm != want {
		t.Fatalf("%s: perm %04o, want %04o", path, perm, want)
	}
}

// AssertSecretFile checks a sealed store file and its parent directory are
// private to the owner.
func AssertSecretFile(t testing.TB, dir, file string) {
	t.Helper()
	AssertMode(t, dir, true, 0o700)
	AssertMode(t, file, false, 0o600)
}
