//go:build !darwin && !linux

package storage

// detectFilesystemType cannot inspect mounts here; the path is assumed local.
func detectFilesystemType(string) (string, error) {
	return "unknown", nil
}
