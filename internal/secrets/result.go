package secrets

// Result is the outcome of Scrub or Check. Findings locate matches by
// offset and never carry the matched value.
type Result struct {
	Original string         `json:"-"`
	Scrubbed string         `json:"scrubbed"`
	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
}

// Finding is one detected span of Result.Original.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
}

func (r *Result) HasFindings() bool { return len(r.Findings) > 0 }

// RuleIDs lists the matching rules once each, in rule order.
func (r *Result) RuleIDs() []string {
	var ids []string
	for _, f := range r.Findings {
		if len(ids) == 0 || !contains(ids, f.RuleID) {
			ids = append(ids, f.RuleID)
		}
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}
