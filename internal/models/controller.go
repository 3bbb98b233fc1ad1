package models

import (
	"time"

	"github.com/creditflow/creditflow/internal/domain"
)

type CreateApplicationRequest struct {
	CompanyName        string   `json:"companyName"`
	ProjectName        string   `json:"projectName"`
	ProjectDescription string   `json:"projectDescription"`
	Sector             string   `json:"sector"`
	RequestedAmount    float64  `json:"requestedAmount"`
	DurationMonths     int      `json:"durationMonths"`
	AnnualRevenue      float64  `json:"annualRevenue"`
	ExistingDebt       float64  `json:"existingDebt"`
	Documents          []string `json:"documents,omitempty"`
}

type CreateApplicationResponse struct {
	WorkflowID string `json:"workflowId"`
}

type CancelApplicationResponse struct {
	OK bool `json:"ok"`
}

type ReasoningResponse struct {
	WorkflowID string                  `json:"workflowId"`
	Entries    []domain.AgentReasoning `json:"entries"`
}

type HistoryEntry struct {
	SequenceNo int64        `json:"sequenceNo"`
	Stage      domain.Stage `json:"stage"`
	WrittenAt  time.Time    `json:"writtenAt"`
}

type HistoryResponse struct {
	WorkflowID  string         `json:"workflowId"`
	Checkpoints []HistoryEntry `json:"checkpoints"`
}
