package models

// DiscoveryProgress is the advisory progress snapshot for a discovery run.
// It never affects control flow; the UI polls it to show scan state.
type DiscoveryProgress struct {
	RunID    string `json:"runId,omitempty"`
	Step     string `json:"step,omitempty"`
	Scanned  int    `json:"scanned"`
	Found    int    `json:"found"`
	Running  bool   `json:"running"`
	Degraded bool   `json:"degraded"`
}

// CollectionBatch is one page of infinite-scroll results.
type CollectionBatch struct {
	Collections []Collection `json:"collections"`
	HasMore     bool         `json:"hasMore"`
}
