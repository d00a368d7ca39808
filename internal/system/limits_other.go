//go:build !linux && !darwin

package system

import "log/slog"

// RaiseFileLimit is a no-op on platforms without a uint64 RLIMIT_NOFILE.
func RaiseFileLimit(want uint64, logger *slog.Logger) {}
