package quality

// Verdict grades an SSIM score.
type Verdict string

const (
	VerdictExcellent  Verdict = "excellent"
	VerdictAcceptable Verdict = "acceptable"
	VerdictBelow      Verdict = "below"
)

// Thresholds are the minimum SSIM scores for each verdict.
type Thresholds struct {
	Excellent  float64
	Acceptable float64
}

// DefaultThresholds returns 0.75 for excellent and 0.70 for acceptable.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 0.75, Acceptable: 0.70}
}

// Classify maps score onto a verdict.
func (t Thresholds) Classify(score float64) Verdict {
	switch {
	case score >= t.Excellent:
		return VerdictExcellent
	case score >= t.Acceptable:
		return VerdictAcceptable
	default:
		return VerdictBelow
	}
}

// Publishable reports whether a result with this verdict may be published.
func (v Verdict) Publishable() bool {
	return v == VerdictExcellent || v == VerdictAcceptable
}
