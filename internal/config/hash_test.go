package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLockDryRun(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "texgate.yaml")
	if err := os.WriteFile(configPath, []byte("service:\n  name: t\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := Lock(configPath, true)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if report.Written {
		t.Fatal("report.Written = true, want false in dry-run")
	}
	if len(report.Files) != 3 {
		t.Fatalf("len(report.Files) = %d, want 3", len(report.Files))
	}
	if !report.Files[0].Exists || len(report.Files[0].Hash) != 64 {
		t.Fatalf("config file should be hashed, got %+v", report.Files[0])
	}
	if report.Files[1].Exists {
		t.Fatal(".env should be reported as missing")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, ChecksumFile)); !os.IsNotExist(err) {
		t.Fatal(".checksums should not be written in dry-run mode")
	}
}

func TestLockThenVerify(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "texgate.yaml")
	if err := os.WriteFile(configPath, []byte("service:\n  name: t\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("API_KEY=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := Lock(configPath, false)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if !report.Written {
		t.Fatal("expected manifest to be written")
	}
	if !HasManifest(configPath) {
		t.Fatal("HasManifest() = false after lock")
	}
	if err := Verify(configPath); err != nil {
		t.Fatalf("Verify() after lock: %v", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("API_KEY=tampered\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	err = Verify(configPath)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch for .env") {
		t.Fatalf("expected .env hash mismatch, got %v", err)
	}
}

func TestVerifyWithoutManifest(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "texgate.yaml")
	if err := Verify(configPath); err != nil {
		t.Fatalf("Verify() without manifest should pass, got %v", err)
	}
}

func TestVerifyDetectsUnlockedFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "texgate.yaml")
	if err := os.WriteFile(configPath, []byte("{}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(configPath, false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, ".env.local"), []byte("X=1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	err := Verify(configPath)
	if err == nil || !strings.Contains(err.Error(), ".env.local has no hash") {
		t.Fatalf("expected unlocked file error, got %v", err)
	}
}
