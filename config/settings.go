package config

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Metadata  MetadataSettings  `json:"metadata"`
	Discovery DiscoverySettings `json:"discovery"`
	Cache     CacheSettings     `json:"cache"`
	Log       LogSettings       `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type MetadataSettings struct {
	TMDBAPIKey string `json:"tmdbApiKey"`
	Language   string `json:"language"`
}

type DiscoverySettings struct {
	MaxResults             int `json:"maxResults"`
	TimeoutSeconds         int `json:"timeoutSeconds"`
	FallbackTimeoutSeconds int `json:"fallbackTimeoutSeconds"`
	StepDelayMs            int `json:"stepDelayMs"`
	MinRequestIntervalMs   int `json:"minRequestIntervalMs"`
}

type CacheSettings struct {
	ResponseTTLMinutes int `json:"responseTtlMinutes"`
	ResponseMaxEntries int `json:"responseMaxEntries"`
	SnapshotTTLHours   int `json:"snapshotTtlHours"`
}

type LogSettings struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"` // megabytes
	MaxBackups int    `json:"maxBackups"`
	MaxAge     int    `json:"maxAge"` // days
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the defaults written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 7878,
		},
		Metadata: MetadataSettings{
			TMDBAPIKey: "",
			Language:   "en-US",
		},
		Discovery: DiscoverySettings{
			MaxResults:             60,
			TimeoutSeconds:         45,
			FallbackTimeoutSeconds: 15,
			StepDelayMs:            40,
			MinRequestIntervalMs:   100,
		},
		Cache: CacheSettings{
			ResponseTTLMinutes: 5,
			ResponseMaxEntries: 200,
			SnapshotTTLHours:   2,
		},
		Log: LogSettings{
			File:       "cache/logs/backend.log",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
	fs   afero.Fs
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath, fs: afero.NewOsFs()}
}

// NewManagerWithFs is NewManager with an explicit filesystem, used by tests.
func NewManagerWithFs(configPath string, fsys afero.Fs) *Manager {
	return &Manager{path: configPath, fs: fsys}
}

func (m *Manager) Path() string {
	return m.path
}

// EnsureDir creates the directory holding the settings file.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "" || dir == "." {
		return nil
	}
	return m.fs.MkdirAll(dir, 0o755)
}

// Load reads the settings file, creating it with defaults when missing.
// Fields a file written by an older build lacks are backfilled with their
// defaults; the file itself is left as the user wrote it.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}

	exists, err := afero.Exists(m.fs, m.path)
	if err != nil {
		return Settings{}, err
	}
	if !exists {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	backfill(&s)
	return s, nil
}

// Save writes settings as indented JSON.
func (m *Manager) Save(s Settings) error {
	if err := m.EnsureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(m.fs, m.path, data, 0o644)
}

func backfill(s *Settings) {
	defaults := DefaultSettings()
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = defaults.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = defaults.Server.Port
	}
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = defaults.Metadata.Language
	}
	if s.Discovery.MaxResults == 0 {
		s.Discovery.MaxResults = defaults.Discovery.MaxResults
	}
	if s.Discovery.TimeoutSeconds == 0 {
		s.Discovery.TimeoutSeconds = defaults.Discovery.TimeoutSeconds
	}
	if s.Discovery.FallbackTimeoutSeconds == 0 {
		s.Discovery.FallbackTimeoutSeconds = defaults.Discovery.FallbackTimeoutSeconds
	}
	if s.Discovery.MinRequestIntervalMs == 0 {
		s.Discovery.MinRequestIntervalMs = defaults.Discovery.MinRequestIntervalMs
	}
	if s.Cache.ResponseTTLMinutes == 0 {
		s.Cache.ResponseTTLMinutes = defaults.Cache.ResponseTTLMinutes
	}
	if s.Cache.ResponseMaxEntries == 0 {
		s.Cache.ResponseMaxEntries = defaults.Cache.ResponseMaxEntries
	}
	if s.Cache.SnapshotTTLHours == 0 {
		s.Cache.SnapshotTTLHours = defaults.Cache.SnapshotTTLHours
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = defaults.Log.MaxSize
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = defaults.Log.MaxBackups
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = defaults.Log.MaxAge
	}
}
