//go:build linux || darwin

package system

import (
	"log/slog"
	"syscall"
)

// RaiseFileLimit lifts the soft open-file limit to want (bounded by the hard
// limit). Export runs keep a decoder process and several media files open
// per worker.
func RaiseFileLimit(want uint64, logger *slog.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", "error", err)
		return
	}
	if rLimit.Cur >= want {
		return
	}

	rLimit.Cur = min(want, rLimit.Max)
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", "error", err)
		return
	}
	logger.Debug("open file limit raised", "limit", rLimit.Cur)
}
