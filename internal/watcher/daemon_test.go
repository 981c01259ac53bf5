package watcher

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func pidFileWith(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watch.pid")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsDaemonRunningNoPIDFile(t *testing.T) {
	running, err := IsDaemonRunning(filepath.Join(t.TempDir(), "watch.pid"))
	if err != nil {
		t.Errorf("IsDaemonRunning() error = %v", err)
	}
	if running {
		t.Error("IsDaemonRunning() = true without a PID file")
	}
}

func TestIsDaemonRunningCurrentProcess(t *testing.T) {
	path := pidFileWith(t, strconv.Itoa(os.Getpid())+"\n")

	running, err := IsDaemonRunning(path)
	if err != nil {
		t.Errorf("IsDaemonRunning() error = %v", err)
	}
	if !running {
		t.Error("IsDaemonRunning() = false for a live process")
	}
}

func TestIsDaemonRunningDeadProcessRemovesStalePID(t *testing.T) {
	path := pidFileWith(t, "999999\n")

	running, err := IsDaemonRunning(path)
	if err != nil {
		t.Errorf("IsDaemonRunning() error = %v", err)
	}
	if running {
		t.Error("IsDaemonRunning() = true for a dead process")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stale PID file was not removed")
	}
}

func TestIsDaemonRunningInvalidPID(t *testing.T) {
	path := pidFileWith(t, "not-a-number\n")

	running, err := IsDaemonRunning(path)
	if err != nil {
		t.Errorf("IsDaemonRunning() error = %v", err)
	}
	if running {
		t.Error("IsDaemonRunning() = true for an unparseable PID")
	}
}

func TestStopDaemonNotRunning(t *testing.T) {
	if err := StopDaemon(filepath.Join(t.TempDir(), "watch.pid")); err == nil {
		t.Error("StopDaemon() succeeded without a PID file")
	}
}

func TestStopDaemonInvalidPID(t *testing.T) {
	path := pidFileWith(t, "broken\n")
	if err := StopDaemon(path); err == nil {
		t.Error("StopDaemon() accepted an unparseable PID")
	}
}

func TestStartDaemonAlreadyRunning(t *testing.T) {
	path := pidFileWith(t, strconv.Itoa(os.Getpid())+"\n")
	logFile := filepath.Join(t.TempDir(), "watch.log")

	if err := StartDaemon(path, logFile); err == nil {
		t.Error("StartDaemon() ignored a live PID file")
	}
}

func TestStartDaemonUnwritableLog(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "watch.pid")
	logFile := filepath.Join(t.TempDir(), "missing", "watch.log")

	if err := StartDaemon(pidFile, logFile); err == nil {
		t.Error("StartDaemon() accepted an unwritable log path")
	}
}
