package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// GeneratePath creates a timestamped project filename in dir
func GeneratePath(dir, name string) string {
	if name == "" {
		name = "project"
	}
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", name, timestamp))
}

// FindLatest finds the most recently modified project file in dir
func FindLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read projects directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var projects []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		projects = append(projects, candidate{filepath.Join(dir, entry.Name()), info.ModTime()})
	}

	if len(projects) == 0 {
		return "", fmt.Errorf("no project files found in %s", dir)
	}

	// Sort by modification time (newest first)
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].mod.After(projects[j].mod)
	})

	return projects[0].path, nil
}
