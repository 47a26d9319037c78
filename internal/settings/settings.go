package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/sourcecheck/internal/llm"
	"gopkg.in/yaml.v3"
)

// Settings are the user preferences the display surface can change at runtime
type Settings struct {
	Provider   string `yaml:"provider,omitempty" json:"provider,omitempty"`
	APIKey     string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Model      string `yaml:"model,omitempty" json:"model,omitempty"`
	MaxSources int    `yaml:"max_sources,omitempty" json:"max_sources,omitempty"`
}

// HasCredentials reports whether the selected provider can be called
func (s Settings) HasCredentials() bool {
	if !llm.RequiresAPIKey(s.Provider) {
		return true
	}
	return s.APIKey != ""
}

// Merge overlays the non-empty fields of other onto s
func (s Settings) Merge(other Settings) Settings {
	if other.Provider != "" {
		s.Provider = other.Provider
	}
	if other.APIKey != "" {
		s.APIKey = other.APIKey
	}
	if other.Model != "" {
		s.Model = other.Model
	}
	if other.MaxSources > 0 {
		s.MaxSources = other.MaxSources
	}
	return s
}

// Store persists settings
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// DefaultPath returns $HOME/.sourcecheck/settings.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".sourcecheck", "settings.yaml"), nil
}

// FileStore keeps settings in a YAML file
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the settings file. A missing file yields zero settings.
func (f *FileStore) Load() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes settings with owner-only permissions, since they hold an API key
func (f *FileStore) Save(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// MemoryStore keeps settings in memory
type MemoryStore struct {
	mu       sync.RWMutex
	settings Settings
}

// NewMemoryStore creates a store holding initial
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{settings: initial}
}

func (m *MemoryStore) Load() (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}
