// Package checkpoint persists workflow sessions so they can pause at an
// interrupt, survive a process restart, and resume from the last transition.
//
// Two backends are provided: an embedded Badger key-value store (the default)
// and a plain directory of JSON files guarded by file locks.
package checkpoint

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
)

// validThreadID restricts thread ids to characters safe in file names and keys.
var validThreadID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store persists checkpoints keyed by thread id.
type Store interface {
	// Save records a new revision for cp.ThreadID. It fills in Revision,
	// SchemaVersion, and SavedAt.
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// Load returns the latest revision. Returns ErrThreadNotFound if none exists.
	Load(ctx context.Context, threadID string) (*domain.Checkpoint, error)

	// List returns a summary of the latest revision of every thread, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Purge deletes every revision of a thread. Purging an unknown thread is not an error.
	Purge(ctx context.Context, threadID string) error

	// Close releases the store.
	Close() error
}

// Summary describes one stored session.
type Summary struct {
	ThreadID  string                   `json:"thread_id"`
	ProjectID string                   `json:"project_id"`
	Status    constants.WorkflowStatus `json:"status"`
	NextNode  string                   `json:"next_node"`
	Paused    bool                     `json:"paused"`
	Revision  string                   `json:"revision"`
	SavedAt   time.Time                `json:"saved_at"`

	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`
}

func summarize(cp *domain.Checkpoint) Summary {
	return Summary{
		ThreadID:  cp.ThreadID,
		ProjectID: cp.State.ProjectID,
		Status:    cp.State.Status,
		NextNode:  cp.NextNode,
		Paused:    cp.Paused,
		Revision:  cp.Revision,
		SavedAt:   cp.SavedAt,

		CompletedTasks: cp.State.CompletedTasks,
		TotalTasks:     cp.State.TotalTasks,
	}
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		return s[i].SavedAt.After(s[j].SavedAt)
	})
}

// ValidateThreadID checks that id can be used as a store key.
func ValidateThreadID(id string) error {
	if id == "" {
		return fmt.Errorf("thread id %w", forgeerrors.ErrEmptyValue)
	}
	if !validThreadID.MatchString(id) {
		return fmt.Errorf("%w: invalid thread id %q", forgeerrors.ErrInvalidConfig, id)
	}
	return nil
}

// stamp fills in the store-assigned fields.
func stamp(cp *domain.Checkpoint) {
	cp.Revision = ulid.Make().String()
	cp.SchemaVersion = constants.CheckpointSchemaVersion
	cp.SavedAt = time.Now().UTC()
}

// Open creates the store selected by cfg.Checkpoint.Backend under home.
func Open(cfg *config.Config, home string) (Store, error) {
	dir := cfg.CheckpointDir(home)
	switch cfg.Checkpoint.Backend {
	case "", "badger":
		return OpenBadger(filepath.Join(dir, "badger"))
	case "file":
		return NewFileStore(filepath.Join(dir, "files"))
	default:
		return nil, fmt.Errorf("%w: %q", forgeerrors.ErrUnknownBackend, cfg.Checkpoint.Backend)
	}
}
