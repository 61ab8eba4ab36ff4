// Package logging provides tag-gated verbose logging on top of slog.
// Chatty driver paths (image attach/detach, session transitions) log
// through VInfo so they stay silent unless a tag is enabled via the
// LOG_TAGS environment variable or at runtime.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu   sync.RWMutex
	tags = make(map[string]bool)
)

func init() {
	EnableMany(os.Getenv("LOG_TAGS"))
}

// VerboseEnabled reports whether the given tag is enabled.
func VerboseEnabled(tag string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return tags[tag]
}

// Enable turns on a tag at runtime.
func Enable(tag string) {
	if tag == "" {
		return
	}
	mu.Lock()
	tags[tag] = true
	mu.Unlock()
}

// EnableMany enables a comma-separated list of tags.
func EnableMany(csv string) {
	for _, t := range strings.Split(csv, ",") {
		Enable(strings.TrimSpace(t))
	}
}

// VInfo logs at Info level only when the tag is enabled. It forwards to
// slog.Info so callers pass structured attributes.
func VInfo(tag string, msg string, attrs ...slog.Attr) {
	if !VerboseEnabled(tag) {
		return
	}
	pairs := make([]any, 0, len(attrs)*2)
	for _, a := range attrs {
		pairs = append(pairs, a.Key, a.Value.Any())
	}
	slog.Info(msg, pairs...)
}
