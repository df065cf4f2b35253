package intent

// Tier is a cost/capability class of language model.
type Tier string

const (
	TierCheap   Tier = "cheap"
	TierCapable Tier = "capable"
)

// SelectTier picks the model tier for an intent. Booking and complaint need
// multi-step reasoning or tool use; everything else runs on the cheap tier.
func SelectTier(i Intent) Tier {
	switch i {
	case Booking, Complaint:
		return TierCapable
	default:
		return TierCheap
	}
}
