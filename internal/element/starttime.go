package element

const (
	// snapLeadingWindow is the minimum position worth resuming from
	snapLeadingWindow = 5.0
	// snapTrailingWindow is how close to the end a resume restarts instead
	snapTrailingWindow = 10.0
)

// ResolveStartTime applies the snap-to-zero correction to a resume position.
// Positions below 5 seconds, or within the last 10 seconds of a known
// duration, restart from 0. A duration <= 0 is treated as unknown.
func ResolveStartTime(position, duration float64) float64 {
	if position < snapLeadingWindow {
		return 0
	}
	if duration > 0 && position >= duration-snapTrailingWindow {
		return 0
	}
	return position
}
