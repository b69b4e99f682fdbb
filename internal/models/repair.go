package models

// Tier names the pipeline stage that produced a repair.
type Tier string

const (
	TierHeuristic Tier = "heuristic"
	TierLLM       Tier = "llm"
)

// RepairRequest is the body accepted by both repair endpoints.
type RepairRequest struct {
	BrokenJSON string `json:"broken_json"`
}

// RepairResult carries a decoded JSON value, never unparsed text.
type RepairResult struct {
	Value interface{} `json:"repaired_json"`
	Tier  Tier        `json:"tier"`
}

// DemoRepairResponse is returned by POST /repair/demo.
type DemoRepairResponse struct {
	RepairedJSON interface{} `json:"repaired_json"`
	Tier         Tier        `json:"tier"`
}

// MeteredRepairResponse is returned by POST /repair.
type MeteredRepairResponse struct {
	RepairedJSON interface{} `json:"repaired_json"`
	Tier         Tier        `json:"tier"`
	CreditsLeft  int         `json:"credits_left"`
}
