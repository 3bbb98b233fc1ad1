package domain

import "time"

// CheckpointRecord is the append-only unit written by the checkpoint store.
// SequenceNo is strictly increasing per workflow; the latest record for a
// workflow reconstructs its WorkflowState.
type CheckpointRecord struct {
	WorkflowID string            `json:"workflowId"`
	SequenceNo int64             `json:"sequenceNo"`
	State      *WorkflowState    `json:"state"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	WrittenAt  time.Time         `json:"writtenAt"`
}
