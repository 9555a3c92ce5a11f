package domain

import "time"

// RunRequest carries the inputs of one invocation.
type RunRequest struct {
	CasesFile string
	Model     string
}

// PairFailure records why a (document, case) pair produced no output.
type PairFailure struct {
	DocumentID string `json:"document"`
	CaseName   string `json:"case"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Truncated  bool   `json:"truncated"`
}

// PairOutput lists the artifacts written for a successful pair.
type PairOutput struct {
	DocumentID string   `json:"document"`
	CaseName   string   `json:"case"`
	Truncated  bool     `json:"truncated"`
	Paths      []string `json:"paths"`
}

// RunSummary is returned at the end of a run, including a partial one.
type RunSummary struct {
	Model     string        `json:"model"`
	Documents int           `json:"documents"`
	Cases     int           `json:"cases"`
	Pairs     int           `json:"pairs"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Truncated int           `json:"truncated"`
	Outputs   []PairOutput  `json:"outputs"`
	Failures  []PairFailure `json:"failures"`
	Duration  time.Duration `json:"duration"`
}
