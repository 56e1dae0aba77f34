package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// CheckLocalFilesystem reports the filesystem type under path and fails when
// it is a network share. SQLite locking is unreliable there.
func CheckLocalFilesystem(path string) (string, error) {
	return checkLocalFilesystem(path, detectFilesystemType)
}

func checkLocalFilesystem(path string, detect func(string) (string, error)) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}

	existing, err := nearestExistingPath(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}

	fsType, err := detect(existing)
	if err != nil {
		return "", fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}

	if isNetworkFilesystem(fsType) {
		return fsType, fmt.Errorf(
			"%q is on network filesystem %q; the compile journal needs local disk for SQLite locking. Point journal.path at a local file",
			path, fsType,
		)
	}
	return fsType, nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
