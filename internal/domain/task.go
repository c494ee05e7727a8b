package domain

import (
	"fmt"
	"time"

	"github.com/mrz1836/forge/internal/constants"
)

// Task is a coarse unit of work decomposed from the goal.
type Task struct {
	ID     string               `json:"id"`
	Title  string               `json:"title"`
	Status constants.TaskStatus `json:"status"`

	// Note records why a task was completed without being built, e.g. a strategist SKIP.
	Note string `json:"note,omitempty"`
}

// TaskList is the content of tasks.json inside the sandbox.
type TaskList struct {
	Tasks     []Task    `json:"tasks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTaskList builds a list of pending tasks from titles.
func NewTaskList(titles []string) *TaskList {
	tl := &TaskList{Tasks: make([]Task, 0, len(titles)), UpdatedAt: time.Now().UTC()}
	for i, title := range titles {
		tl.Tasks = append(tl.Tasks, Task{
			ID:     fmt.Sprintf("task-%d", i+1),
			Title:  title,
			Status: constants.TaskPending,
		})
	}
	return tl
}

// PendingTitles returns the titles of pending tasks in order.
func (tl *TaskList) PendingTitles() []string {
	out := make([]string, 0, len(tl.Tasks))
	for _, t := range tl.Tasks {
		if t.Status == constants.TaskPending {
			out = append(out, t.Title)
		}
	}
	return out
}

// CompletedCount returns how many tasks are completed.
func (tl *TaskList) CompletedCount() int {
	n := 0
	for _, t := range tl.Tasks {
		if t.Status == constants.TaskCompleted {
			n++
		}
	}
	return n
}

// Complete marks the first pending task with the title as completed.
// It reports whether a task was found.
func (tl *TaskList) Complete(title, note string) bool {
	for i := range tl.Tasks {
		if tl.Tasks[i].Title == title && tl.Tasks[i].Status == constants.TaskPending {
			tl.Tasks[i].Status = constants.TaskCompleted
			tl.Tasks[i].Note = note
			tl.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}
