package rules

// FunctionType is the kind of remediation function attached to a rule.
type FunctionType string

// Remediation function types.
const (
	Linear        FunctionType = "LINEAR"
	LinearOffset  FunctionType = "LINEAR_OFFSET"
	ConstantIssue FunctionType = "CONSTANT_ISSUE"
)

// UsesGapMultiplier reports whether the function multiplies the issue gap.
func (t FunctionType) UsesGapMultiplier() bool {
	return t == Linear || t == LinearOffset
}

// UsesBaseEffort reports whether the function adds a fixed offset.
func (t FunctionType) UsesBaseEffort() bool {
	return t == LinearOffset || t == ConstantIssue
}

// Valid reports whether t is a known function type.
func (t FunctionType) Valid() bool {
	switch t {
	case Linear, LinearOffset, ConstantIssue:
		return true
	default:
		return false
	}
}

// RemediationFunction computes remediation effort. Durations are work durations
// such as "10min", "1h 30min" or "2d".
type RemediationFunction struct {
	Type          FunctionType
	GapMultiplier string
	BaseEffort    string
}
