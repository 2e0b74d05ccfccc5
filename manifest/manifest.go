// Package manifest handles vela.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chazu/vela/namespace"
	"github.com/chazu/vela/testengine"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("vela.manifest")

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "vela.toml"

// Manifest represents a vela.toml project configuration.
type Manifest struct {
	Project   Project         `toml:"project"`
	Source    Source          `toml:"source"`
	Storage   StorageConfig   `toml:"storage"`
	Namespace NamespaceConfig `toml:"namespace"`
	Test      TestConfig      `toml:"test"`

	// Dir is the directory containing the vela.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where definition files live.
type Source struct {
	Dirs []string `toml:"dirs"`
}

// StorageConfig locates the codebase snapshot and the test cache.
type StorageConfig struct {
	Path         string `toml:"path"`
	CachePath    string `toml:"cache_path"`
	CacheBackend string `toml:"cache_backend"`
}

// NamespaceConfig configures the namespace store.
type NamespaceConfig struct {
	Policy  string `toml:"policy"`
	LogPath string `toml:"log_path"`
}

// TestConfig configures test generation and the runner.
type TestConfig struct {
	MaxTests int    `toml:"max_tests"`
	Property bool   `toml:"property"`
	Edge     bool   `toml:"edge"`
	Timeout  string `toml:"timeout"`
	Parallel bool   `toml:"parallel"`
	Threads  int    `toml:"threads"`
	FailFast bool   `toml:"fail_fast"`
}

// Default returns the configuration used when no vela.toml exists, or for
// fields a vela.toml leaves out.
func Default() Manifest {
	return Manifest{
		Source: Source{Dirs: []string{"src"}},
		Storage: StorageConfig{
			Path:         filepath.Join(".vela", "codebase.vbin"),
			CachePath:    filepath.Join(".vela", "testcache"),
			CacheBackend: string(testengine.BackendSQLite),
		},
		Namespace: NamespaceConfig{
			Policy:  namespace.Overwrite.String(),
			LogPath: filepath.Join(".vela", "namespace.log"),
		},
		Test: TestConfig{
			MaxTests: 10,
			Property: true,
			Edge:     true,
			Timeout:  "5s",
		},
	}
}

// Load parses a vela.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a vela.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) validate() error {
	if _, err := namespace.ParsePolicy(m.Namespace.Policy); err != nil {
		return err
	}
	if _, err := testengine.ParseBackend(m.Storage.CacheBackend); err != nil {
		return err
	}
	if _, err := m.timeout(); err != nil {
		return err
	}
	if m.Test.MaxTests < 0 || m.Test.Threads < 0 {
		return fmt.Errorf("test: max_tests and threads must not be negative")
	}
	return nil
}

func (m *Manifest) timeout() (time.Duration, error) {
	if m.Test.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(m.Test.Timeout)
	if err != nil {
		return 0, fmt.Errorf("test.timeout: %w", err)
	}
	return d, nil
}

func (m *Manifest) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.abs(d))
	}
	return paths
}

// StoragePath returns the absolute path of the VBin snapshot.
func (m *Manifest) StoragePath() string { return m.abs(m.Storage.Path) }

// CachePath returns the absolute path of the test cache. An empty
// cache_path keeps the cache in memory.
func (m *Manifest) CachePath() string { return m.abs(m.Storage.CachePath) }

// LogPath returns the absolute path of the namespace command log.
func (m *Manifest) LogPath() string { return m.abs(m.Namespace.LogPath) }

// CacheBackend returns the configured test cache backend.
func (m *Manifest) CacheBackend() testengine.Backend {
	b, _ := testengine.ParseBackend(m.Storage.CacheBackend)
	return b
}

// Policy returns the configured redefinition policy.
func (m *Manifest) Policy() namespace.RedefinitionPolicy {
	p, _ := namespace.ParsePolicy(m.Namespace.Policy)
	return p
}

// GenConfig returns the generator settings.
func (m *Manifest) GenConfig() testengine.GenConfig {
	cfg := testengine.DefaultGenConfig()
	cfg.MaxTestsPerFunction = m.Test.MaxTests
	cfg.EnablePropertyTests = m.Test.Property
	cfg.EnableEdgeCases = m.Test.Edge
	return cfg
}

// RunConfig returns the runner settings.
func (m *Manifest) RunConfig() testengine.RunConfig {
	cfg := testengine.DefaultRunConfig()
	cfg.Timeout, _ = m.timeout()
	cfg.Parallel = m.Test.Parallel
	cfg.NumThreads = m.Test.Threads
	cfg.FailFast = m.Test.FailFast
	return cfg
}
