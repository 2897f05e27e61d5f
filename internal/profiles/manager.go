// Package profiles stores named endpoints as small YAML files, one per alias,
// so a source or target can be picked with --source-profile or --target-profile.
package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kadirbelkuyu/docsnap/internal/config"
	"gopkg.in/yaml.v3"
)

const (
	defaultDir = "configs"
	profileExt = ".yaml"
)

var (
	aliasSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

	ErrNotFound = errors.New("profile not found")
)

// Profile describes a saved endpoint. Address never carries the password.
type Profile struct {
	Name     string
	Path     string
	Address  string
	Modified time.Time
}

type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

// List returns the endpoint profiles in the directory sorted by name.
// Files that do not parse as a mongo endpoint are skipped.
func (m *Manager) List() ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	var saved []Profile
	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		endpoint, err := loadEndpoint(path)
		if err != nil || endpoint.Type != "mongo" {
			continue
		}

		profile := newProfile(path, endpoint)
		if info, err := entry.Info(); err == nil {
			profile.Modified = info.ModTime()
		}
		saved = append(saved, profile)
	}

	sort.Slice(saved, func(i, j int) bool { return saved[i].Name < saved[j].Name })
	return saved, nil
}

// Save writes endpoint under alias, replacing an existing profile of the same name.
func (m *Manager) Save(alias string, endpoint *config.DatabaseConfig) (Profile, error) {
	if endpoint == nil {
		return Profile{}, fmt.Errorf("endpoint cannot be nil")
	}
	if !endpoint.IsSet() {
		return Profile{}, fmt.Errorf("endpoint has neither uri nor host")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("failed to create profile directory: %w", err)
	}

	name := strings.TrimSpace(alias)
	if name == "" {
		name = "mongo-" + time.Now().Format("20060102_150405")
	}
	path := filepath.Join(m.dir, sanitizeAlias(name)+profileExt)

	data, err := yaml.Marshal(endpoint)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to encode profile: %w", err)
	}
	// Profiles may hold passwords.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Profile{}, fmt.Errorf("failed to write profile: %w", err)
	}

	profile := newProfile(path, endpoint)
	profile.Modified = time.Now()
	return profile, nil
}

// Load reads a profile by alias or by file path.
func (m *Manager) Load(alias string) (*config.DatabaseConfig, error) {
	path, err := m.resolve(alias)
	if err != nil {
		return nil, err
	}
	return loadEndpoint(path)
}

func (m *Manager) Delete(alias string) error {
	path, err := m.resolve(alias)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, alias)
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

func (m *Manager) resolve(alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", fmt.Errorf("profile alias cannot be empty")
	}
	if strings.ContainsRune(alias, os.PathSeparator) {
		return alias, nil
	}
	if isProfileFile(alias) {
		return filepath.Join(m.dir, alias), nil
	}
	return filepath.Join(m.dir, alias+profileExt), nil
}

func loadEndpoint(path string) (*config.DatabaseConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	cfg := config.Config{}
	if err := yaml.Unmarshal(data, &cfg.Source); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	cfg.ApplyDefaults()

	if !cfg.Source.IsSet() {
		return nil, fmt.Errorf("profile %s has neither uri nor host", filepath.Base(path))
	}
	return &cfg.Source, nil
}

func newProfile(path string, endpoint *config.DatabaseConfig) Profile {
	base := filepath.Base(path)
	return Profile{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Path:    path,
		Address: endpoint.Redacted(),
	}
}

func isProfileFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func sanitizeAlias(alias string) string {
	cleaned := strings.Trim(aliasSanitizer.ReplaceAllString(alias, "_"), "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
