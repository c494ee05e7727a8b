package domain

import "time"

// Checkpoint is a durable snapshot of a session: the full state plus the next
// node the engine should run.
type Checkpoint struct {
	ThreadID string        `json:"thread_id"`
	State    WorkflowState `json:"state"`
	NextNode string        `json:"next_node"`

	// Paused is true when the engine stopped at an interrupt point.
	Paused bool `json:"paused"`

	// Revision is a time-sortable id assigned by the store on save.
	Revision string `json:"revision,omitempty"`

	SchemaVersion string    `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
}

// Finished reports whether the session reached the end node.
func (c Checkpoint) Finished() bool {
	return c.NextNode == "end"
}
