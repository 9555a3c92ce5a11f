package domain

// Case is a named analysis criterion applied to every document of a run.
type Case struct {
	Name     string `json:"name"`
	Criteria string `json:"criteria"`
}
