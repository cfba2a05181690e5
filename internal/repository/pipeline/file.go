package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/lambda-packager/internal/domain/phase"
)

// DefaultFilename is the marker file name inside the workspace.
const DefaultFilename = ".packager-state.yaml"

// Marker records the most recently completed phase.
type Marker struct {
	// Phase is the last phase that finished successfully.
	Phase phase.Phase `yaml:"phase"`
	// BuildID identifies the invocation that completed Phase.
	BuildID string `yaml:"build_id"`
	// CompletedAt is when Phase finished.
	CompletedAt time.Time `yaml:"completed_at"`
	// ToolVersion is the packager version that wrote the marker.
	ToolVersion string `yaml:"tool_version"`
}

// Repository defines persistence operations for the pipeline marker.
type Repository interface {
	Load(ctx context.Context) (*Marker, error)
	Save(ctx context.Context, marker *Marker) error
}

// FileRepository persists the marker to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the marker file.
	path string
	// mu protects concurrent access to the marker file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no phase has completed in the workspace yet.
	ErrNotFound = errors.New("pipeline marker not found")
	// errNilMarker is returned when Save receives nil.
	errNilMarker = errors.New("marker is not set")
)

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the marker from disk.
func (r *FileRepository) Load(_ context.Context) (*Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read pipeline marker: %w", err)
	}

	var marker Marker
	if err = yaml.Unmarshal(contents, &marker); err != nil {
		return nil, fmt.Errorf("decode pipeline marker: %w", err)
	}

	if _, err = phase.Parse(string(marker.Phase)); err != nil {
		return nil, fmt.Errorf("decode pipeline marker: %w", err)
	}

	return &marker, nil
}

// Save writes the marker to disk.
func (r *FileRepository) Save(_ context.Context, marker *Marker) error {
	if marker == nil {
		return errNilMarker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode pipeline marker: %w", err)
	}

	if err = os.WriteFile(r.path, data, 0o644); err != nil { //nolint:gosec // Not a secret.
		return fmt.Errorf("write pipeline marker: %w", err)
	}

	return nil
}

// LastCompleted returns the last completed phase, or phase.None for a fresh workspace.
func LastCompleted(ctx context.Context, repo Repository) (phase.Phase, error) {
	marker, err := repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return phase.None, nil
	}

	if err != nil {
		return phase.None, err
	}

	return marker.Phase, nil
}
