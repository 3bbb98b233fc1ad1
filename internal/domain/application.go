package domain

// CreditApplication is the snapshot of a submitted application handed to
// every evaluator. It is never mutated once the workflow has started.
type CreditApplication struct {
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
