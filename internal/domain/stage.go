package domain

// Stage is one named step in the fixed evaluation sequence.
type Stage string

const (
	StageStarted            Stage = "started"
	StageValidating         Stage = "validating"
	StageLegalChecking      Stage = "legal_checking"
	StageRiskAnalyzing      Stage = "risk_analyzing"
	StageRelevanceChecking  Stage = "relevance_checking"
	StageFinancialAnalyzing Stage = "financial_analyzing"
	StageDecisionMaking     Stage = "decision_making"
	StageCompleted          Stage = "completed"
	StageErrored            Stage = "errored"
	StageRejected           Stage = "rejected"
)

// IsTerminal reports whether no further transitions are accepted from s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageErrored || s == StageRejected
}

// AnalysisStages lists the evaluated stages in pipeline order, excluding
// Started, DecisionMaking and the terminal states.
func AnalysisStages() []Stage {
	return []Stage{
		StageValidating,
		StageLegalChecking,
		StageRiskAnalyzing,
		StageRelevanceChecking,
		StageFinancialAnalyzing,
	}
}

// WeightKey maps an analysis stage to the key used by the aggregation
// weight and threshold tables.
func (s Stage) WeightKey() string {
	switch s {
	case StageValidating:
		return "validation"
	case StageLegalChecking:
		return "legal"
	case StageRiskAnalyzing:
		return "risk"
	case StageRelevanceChecking:
		return "relevance"
	case StageFinancialAnalyzing:
		return "financial"
	}
	return string(s)
}
