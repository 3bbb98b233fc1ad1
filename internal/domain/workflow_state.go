package domain

import "time"

// ResultStatus is the outcome of a single evaluator run.
type ResultStatus string

const (
	ResultApproved ResultStatus = "approved"
	ResultRejected ResultStatus = "rejected"
	ResultError    ResultStatus = "error"
)

// StageResult is one stage's output. A stage may be retried but only the
// latest attempt is kept, tagged with AttemptCount.
type StageResult struct {
	Stage           Stage          `json:"stage"`
	Status          ResultStatus   `json:"status"`
	Score           float64        `json:"score"`
	Confidence      float64        `json:"confidence"`
	Summary         string         `json:"summary"`
	Details         map[string]any `json:"details,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Risks           []string       `json:"risks,omitempty"`
	AttemptCount    int            `json:"attemptCount"`
	Elapsed         time.Duration  `json:"elapsed"`
	CompletedAt     time.Time      `json:"completedAt"`
	// Decision is set only on the decision_making stage output.
	Decision *FinalDecision `json:"decision,omitempty"`
}

// AgentReasoning is one entry of the human-readable reasoning feed.
type AgentReasoning struct {
	Agent      string    `json:"agent"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowState is the full state of one application's pass through the
// pipeline. The pipeline is its only writer; everything else reads the
// latest durable checkpoint.
type WorkflowState struct {
	WorkflowID      string            `json:"workflowId"`
	Application     CreditApplication `json:"application"`
	CurrentStage    Stage             `json:"currentStage"`
	StageOutputs    []StageResult     `json:"stageOutputs,omitempty"`
	Reasoning       []AgentReasoning  `json:"reasoning,omitempty"`
	ProgressPercent int               `json:"progressPercent"`
	StatusReason    string            `json:"statusReason,omitempty"`
	FinalDecision   *FinalDecision    `json:"finalDecision,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Output returns the recorded result for the given stage, or nil.
func (s *WorkflowState) Output(stage Stage) *StageResult {
	for i := range s.StageOutputs {
		if s.StageOutputs[i].Stage == stage {
			return &s.StageOutputs[i]
		}
	}
	return nil
}

// SetOutput appends the result for its stage, replacing a previous attempt
// of the same stage if one exists. Outputs of other stages are never
// touched.
func (s *WorkflowState) SetOutput(res StageResult) {
	for i := range s.StageOutputs {
		if s.StageOutputs[i].Stage == res.Stage {
			s.StageOutputs[i] = res
			return
		}
	}
	s.StageOutputs = append(s.StageOutputs, res)
}

// AddReasoning appends one reasoning entry to the feed.
func (s *WorkflowState) AddReasoning(agent, text string, confidence float64, at time.Time) {
	s.Reasoning = append(s.Reasoning, AgentReasoning{
		Agent:      agent,
		Reasoning:  text,
		Confidence: confidence,
		Timestamp:  at,
	})
}
