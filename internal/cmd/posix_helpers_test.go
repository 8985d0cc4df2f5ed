package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func runRm(t *testing.T, recursive, force bool, paths ...string) error {
	t.Helper()

	if err := rmCmd.Flags().Set("recursive", strconv.FormatBool(recursive)); err != nil {
		t.Fatal(err)
	}
	if err := rmCmd.Flags().Set("force", strconv.FormatBool(force)); err != nil {
		t.Fatal(err)
	}

	return rmCmd.RunE(rmCmd, paths)
}

func TestRmForceIgnoresMissing(t *testing.T) {
	base := t.TempDir()
	dist := filepath.Join(base, "dist")
	if err := os.MkdirAll(filepath.Join(dist, "sub"), 0770); err != nil {
		t.Fatal(err)
	}

	targets := []string{dist, filepath.Join(base, "build"), filepath.Join(base, "reports")}
	if err := runRm(t, true, true, targets...); err != nil {
		t.Fatalf("forced removal failed: %v", err)
	}
	if _, err := os.Stat(dist); err == nil {
		t.Error("directory wasn't removed")
	}

	// nothing left to delete, still succeeds
	if err := runRm(t, true, true, targets...); err != nil {
		t.Errorf("repeated removal failed: %v", err)
	}
}

func TestRmMissingWithoutForce(t *testing.T) {
	if err := runRm(t, true, false, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected a missing path to fail without -f")
	}
}

func TestRmDirectoryNeedsRecursive(t *testing.T) {
	dir := t.TempDir()
	if err := runRm(t, false, false, dir); err == nil {
		t.Fatal("expected a directory to be rejected without -r")
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory was removed anyway: %v", err)
	}
}

func TestRmFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.whl")
	if err := os.WriteFile(path, []byte("x"), 0660); err != nil {
		t.Fatal(err)
	}

	if err := runRm(t, false, false, path); err != nil {
		t.Fatalf("removal failed: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Error("file wasn't removed")
	}
}
