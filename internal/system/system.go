// Package system probes the host and the ffmpeg toolchain.
package system

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// frameBudget is the memory one render worker is expected to hold: a few
// 1080p RGBA canvases plus decoded sources.
const frameBudget = 256 << 20

// DefaultWorkers sizes the render pool from the logical CPU count, capped so
// that each worker has frameBudget of available memory.
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		n = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Available > 0 {
		n = min(n, int(vm.Available/frameBudget))
	}
	return max(n, 1)
}

// ProbeDuration returns the container duration of a media file in ms.
func ProbeDuration(ctx context.Context, ffprobe, path string) (int64, error) {
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobe, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	return parseDuration(string(out))
}

func parseDuration(out string) (int64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("invalid duration %v", seconds)
	}
	return int64(math.Round(seconds * 1000)), nil
}

// Hardware encoders in order of preference.
var h264Encoders = []string{"h264_videotoolbox", "h264_nvenc"}

// BestH264Encoder returns the preferred H.264 encoder ffmpeg was built with,
// falling back to libx264.
func BestH264Encoder(ctx context.Context, ffmpeg string) string {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return chooseEncoder(string(out))
}

func chooseEncoder(listing string) string {
	for _, name := range h264Encoders {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}
