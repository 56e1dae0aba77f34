//go:build unix

package enginetest

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

// ProcessAlive reports whether pid is a live, non-zombie process.
func ProcessAlive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		// No procfs; trust kill(pid, 0).
		return true
	}
	// Format: pid (comm) state ...
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return true
	}
	return stat[i+2] != 'Z'
}

// ReadPID parses a PID file written by a fake engine.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(bytes.TrimSpace(data)))
}
