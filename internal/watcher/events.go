package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

type EventType string

const (
	EventCreate EventType = "create"
	EventWrite  EventType = "write"
	EventRemove EventType = "remove"
	EventRename EventType = "rename"
)

type FileEvent struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// FilterConfig configures which files to watch
type FilterConfig struct {
	AllowedExtensions   []string
	IgnorePatterns      []string
	IgnoreHidden        bool
	WatchSubdirectories bool
}

// InboxFilterConfig skips editor droppings, partial downloads and dotfiles.
func InboxFilterConfig() FilterConfig {
	return FilterConfig{
		IgnorePatterns: []string{".tmp", ".swp", ".part", ".crdownload", ".DS_Store", "~"},
		IgnoreHidden:   true,
	}
}

// ShouldProcess checks if a file should be processed based on filter config
func (fc *FilterConfig) ShouldProcess(filePath string) bool {
	base := filepath.Base(filePath)
	if fc.IgnoreHidden && strings.HasPrefix(base, ".") {
		return false
	}
	if len(fc.AllowedExtensions) > 0 {
		ext := strings.ToLower(filepath.Ext(base))
		matched := false
		for _, allowed := range fc.AllowedExtensions {
			if strings.ToLower(allowed) == ext {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, pattern := range fc.IgnorePatterns {
		if strings.HasSuffix(base, pattern) {
			return false
		}
	}
	return true
}
