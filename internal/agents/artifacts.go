package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/sandbox"
)

// loadTasks reads tasks.json. A missing file yields (nil, nil).
func loadTasks(ctx context.Context, mgr sandbox.Manager, name string) (*domain.TaskList, error) {
	data, err := mgr.ReadFile(ctx, name, constants.TasksFileName)
	if err != nil {
		if errors.Is(err, forgeerrors.ErrFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var tl domain.TaskList
	if err := json.Unmarshal(data, &tl); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", constants.TasksFileName, err)
	}
	return &tl, nil
}

func saveTasks(ctx context.Context, mgr sandbox.Manager, name string, tl *domain.TaskList) error {
	data, err := json.MarshalIndent(tl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", constants.TasksFileName, err)
	}
	return mgr.WriteFile(ctx, name, constants.TasksFileName, append(data, '\n'))
}

// completeTask marks title completed in tasks.json. A missing file or task is not an error.
func completeTask(ctx context.Context, mgr sandbox.Manager, name, title, note string) error {
	tl, err := loadTasks(ctx, mgr, name)
	if err != nil || tl == nil {
		return err
	}
	if !tl.Complete(title, note) {
		return nil
	}
	return saveTasks(ctx, mgr, name, tl)
}

// appendProgress adds one line to PROGRESS.md, creating it with a heading.
func appendProgress(ctx context.Context, mgr sandbox.Manager, name, line string) error {
	var b strings.Builder
	existing, err := mgr.ReadFile(ctx, name, constants.ProgressFileName)
	switch {
	case err == nil:
		b.Write(existing)
		if len(existing) > 0 && existing[len(existing)-1] != '\n' {
			b.WriteByte('\n')
		}
	case errors.Is(err, forgeerrors.ErrFileNotFound):
		b.WriteString("# Progress\n\n")
	default:
		return err
	}
	fmt.Fprintf(&b, "- %s (%s)\n", line, time.Now().UTC().Format(time.RFC3339))
	return mgr.WriteFile(ctx, name, constants.ProgressFileName, []byte(b.String()))
}

// truncate shortens s to limit bytes, keeping the tail where errors usually are.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
