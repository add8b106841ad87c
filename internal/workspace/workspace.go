// Package workspace owns the file locations used by a recording session:
// the two intermediate containers and the merged output.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"k8s.io/utils/keymutex"

	"github.com/babelcloud/screenrec/internal/util"
	"github.com/babelcloud/screenrec/internal/writer"
)

const (
	DefaultVideoFile  = "screenwriter-video.mp4"
	DefaultAudioFile  = "screenwriter-audio.mp4"
	DefaultOutputFile = "screenwriter-merged.mp4"
)

// Option configures a Manager.
type Option func(*Manager)

// WithFileNames overrides the file names inside the workspace directory.
// Empty names keep the default.
func WithFileNames(video, audio, output string) Option {
	return func(m *Manager) {
		if video != "" {
			m.videoFile = video
		}
		if audio != "" {
			m.audioFile = audio
		}
		if output != "" {
			m.outputFile = output
		}
	}
}

// Manager resolves and clears the session file locations.
type Manager struct {
	dir        string
	videoFile  string
	audioFile  string
	outputFile string
	locks      keymutex.KeyMutex
}

// New creates a manager rooted at dir.
func New(dir string, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, errors.New("workspace directory is empty")
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve workspace directory %s", dir)
	}

	m := &Manager{
		dir:        abs,
		videoFile:  DefaultVideoFile,
		audioFile:  DefaultAudioFile,
		outputFile: DefaultOutputFile,
		locks:      keymutex.NewHashed(16),
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, name := range []string{m.videoFile, m.audioFile, m.outputFile} {
		if filepath.Base(name) != name {
			return nil, errors.Errorf("invalid workspace file name %q", name)
		}
	}
	if m.videoFile == m.audioFile || m.videoFile == m.outputFile || m.audioFile == m.outputFile {
		return nil, errors.New("workspace file names must be distinct")
	}

	return m, nil
}

// DefaultDir returns the per-user data directory for recordings.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "screenrec")
}

// Default creates a manager in DefaultDir.
func Default(opts ...Option) (*Manager, error) {
	return New(DefaultDir(), opts...)
}

func (m *Manager) Dir() string {
	return m.dir
}

// VideoPath returns the video intermediate location.
func (m *Manager) VideoPath() string {
	return filepath.Join(m.dir, m.videoFile)
}

// AudioPath returns the audio intermediate location.
func (m *Manager) AudioPath() string {
	return filepath.Join(m.dir, m.audioFile)
}

// OutputPath returns the merged output location.
func (m *Manager) OutputPath() string {
	return filepath.Join(m.dir, m.outputFile)
}

// Prepare creates the directory and removes leftovers of a previous session.
func (m *Manager) Prepare() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create workspace directory %s", m.dir)
	}
	return m.ClearAll()
}

// ClearIntermediates removes both intermediate files. Every removal is
// attempted; the errors are combined.
func (m *Manager) ClearIntermediates() error {
	return multierr.Combine(
		m.remove(m.VideoPath()),
		m.remove(m.AudioPath()),
	)
}

// ClearOutput removes the merged output.
func (m *Manager) ClearOutput() error {
	return m.remove(m.OutputPath())
}

// ClearAll removes every session file, attempting each one.
func (m *Manager) ClearAll() error {
	return multierr.Append(m.ClearIntermediates(), m.ClearOutput())
}

// Exists reports whether path exists.
func (m *Manager) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// remove deletes path and the fragment file a writer may have left next to
// it. Missing files are ignored.
func (m *Manager) remove(path string) error {
	m.locks.LockKey(path)
	defer func() {
		if err := m.locks.UnlockKey(path); err != nil {
			util.GetLogger().Warn("Failed to unlock workspace path", "path", path, "error", err)
		}
	}()

	var errs error
	for _, p := range []string{path, path + writer.PartsSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = multierr.Append(errs, errors.Wrapf(err, "failed to remove %s", p))
		}
	}
	return errs
}
