package model

// SourceType tags where a result's data came from.
type SourceType string

const (
	SourceConfirmed SourceType = "confirmed"
	SourcePotential SourceType = "potential"
	SourceSimulated SourceType = "simulated"
	SourceInvalid   SourceType = "invalid"
	// SourceMissing is the terminal state: no real data in the requested
	// year nor in any confirmed year that could seed a projection.
	SourceMissing SourceType = "missing"
)

// IsReal reports whether data tagged with s was measured rather than projected.
func (s SourceType) IsReal() bool {
	return s == SourceConfirmed || s == SourcePotential
}

// Outcome records how a fetch concluded.
type Outcome string

const (
	OutcomeFetched  Outcome = "fetched"
	OutcomeFellBack Outcome = "fellBack"
	OutcomeEmpty    Outcome = "empty"
	// OutcomeSkipped means no network call was attempted.
	OutcomeSkipped Outcome = "skipped"
)
