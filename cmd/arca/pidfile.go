package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// writePIDFile records the running daemon's PID so a later `daemon
// stop`/`daemon status` invocation (a separate process) can find it.
// Reimplementing process supervision (an init/PID-1) is out of scope;
// this is the minimal single-file handoff a detached daemon process
// needs, not a supervisor.
func writePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// readPIDFile returns the PID recorded at path.
func readPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("pidfile %s: malformed contents: %w", path, err)
	}
	return pid, nil
}

// processAlive reports whether pid names a running process, using the
// signal-0 probe (POSIX's documented way to test existence without
// affecting the target).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
