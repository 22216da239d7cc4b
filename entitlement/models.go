package entitlement

// Result is the outcome of an entitlement check. Used and Remaining are
// quantities in the meter's unit; Limit is the plan feature's configured
// limit, with -1 meaning unlimited.
type Result struct {
	Allowed   bool    `json:"allowed"`
	Feature   string  `json:"feature"`
	Used      float64 `json:"used"`
	Limit     int64   `json:"limit"`
	Remaining float64 `json:"remaining"`
	SoftLimit bool    `json:"soft_limit"`
	Reason    string  `json:"reason,omitempty"`
}
