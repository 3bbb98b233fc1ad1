package domain

import "time"

// EventType classifies transition events pushed to subscribers.
type EventType string

const (
	EventInitialState  EventType = "initial_state"
	EventStageUpdate   EventType = "stage_update"
	EventFinalDecision EventType = "final_decision"
)

// TransitionEvent is one state change of a workflow, published in the same
// order its checkpoint was written.
type TransitionEvent struct {
	Type            EventType      `json:"type"`
	WorkflowID      string         `json:"workflowId"`
	Stage           Stage          `json:"stage"`
	SequenceNo      int64          `json:"sequenceNo"`
	ProgressPercent int            `json:"progressPercent"`
	Result          *StageResult   `json:"result,omitempty"`
	Decision        *FinalDecision `json:"decision,omitempty"`
	StatusReason    string         `json:"statusReason,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
