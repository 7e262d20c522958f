// Package prompt loads persona prompt bundles from disk. A profile lives in
// <root>/<profile>/ and consists of <profile>.system.md (required),
// <profile>.user.md (optional primer), and any number of
// <profile>.<name>.md extras.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"communitybot/pkg/logx"
)

// Bundle holds the prompt files of one profile.
type Bundle struct {
	Profile string
	System  string
	User    string
	Extras  map[string]string
}

// Loader reads and caches prompt bundles.
type Loader struct {
	mu       sync.Mutex
	root     string
	override string
	cache    map[string]*Bundle
	logger   *logx.Logger
}

// NewLoader creates a loader rooted at the given directory. A non-empty
// systemOverride replaces the on-disk system prompt of every bundle.
func NewLoader(root, systemOverride string) *Loader {
	return &Loader{
		root:     root,
		override: systemOverride,
		cache:    make(map[string]*Bundle),
		logger:   logx.NewLogger("prompt"),
	}
}

// Load returns the bundle for a profile, reading from disk on first use.
func (l *Loader) Load(profile string) (*Bundle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bundle, ok := l.cache[profile]; ok {
		return bundle, nil
	}

	bundle, err := l.loadFromDisk(profile)
	if err != nil {
		return nil, err
	}
	if l.override != "" {
		l.logger.Debug("applying system prompt override for profile %q", profile)
		bundle.System = l.override
	}
	l.cache[profile] = bundle
	return bundle, nil
}

// Refresh drops the cache so the next Load rereads from disk.
func (l *Loader) Refresh() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]*Bundle)
}

// SystemPrompt is a convenience for the common case of needing only the
// system prompt of a profile.
func (l *Loader) SystemPrompt(profile string) (string, error) {
	bundle, err := l.Load(profile)
	if err != nil {
		return "", err
	}
	return bundle.System, nil
}

func (l *Loader) loadFromDisk(profile string) (*Bundle, error) {
	profileDir := filepath.Join(l.root, profile)
	if _, err := os.Stat(profileDir); err != nil {
		return nil, fmt.Errorf("prompt profile directory not found for %q: %s", profile, profileDir)
	}

	systemPath := filepath.Join(profileDir, profile+".system.md")
	system, err := os.ReadFile(systemPath)
	if err != nil {
		return nil, fmt.Errorf("missing system prompt file for profile %q: %w", profile, err)
	}
	l.logger.Debug("loaded system prompt for profile %q from %s", profile, systemPath)

	bundle := &Bundle{
		Profile: profile,
		System:  string(system),
		Extras:  make(map[string]string),
	}

	userPath := filepath.Join(profileDir, profile+".user.md")
	if user, err := os.ReadFile(userPath); err == nil {
		bundle.User = string(user)
		l.logger.Debug("loaded user primer for profile %q", profile)
	}

	matches, err := filepath.Glob(filepath.Join(profileDir, profile+".*.md"))
	if err != nil {
		return nil, fmt.Errorf("globbing extras for profile %q: %w", profile, err)
	}
	for _, extraPath := range matches {
		stem := strings.TrimSuffix(filepath.Base(extraPath), ".md")
		suffix := strings.TrimPrefix(stem, profile+".")
		if suffix == stem || suffix == "" || suffix == "system" || suffix == "user" {
			continue
		}
		content, err := os.ReadFile(extraPath)
		if err != nil {
			return nil, fmt.Errorf("reading extra prompt %s: %w", extraPath, err)
		}
		bundle.Extras[suffix] = string(content)
		l.logger.Debug("loaded extra prompt %q for profile %q", suffix, profile)
	}

	return bundle, nil
}
