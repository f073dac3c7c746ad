package power

// Poll interval bounds in seconds. The upper bound keeps interval arithmetic
// (including the forwarded-override expiry) far from time.Duration overflow.
const (
	MinPollSeconds = 1
	MaxPollSeconds = 3600
)

// ClampPollSeconds limits seconds to [MinPollSeconds, MaxPollSeconds].
func ClampPollSeconds(seconds int) int {
	return min(max(seconds, MinPollSeconds), MaxPollSeconds)
}
