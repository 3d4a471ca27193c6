package schema

import "time"

// DefaultFrameDelay is the floor used when a frame delay is missing or non-positive.
const DefaultFrameDelay = 100 * time.Millisecond

// FrameDelay returns the delay for frame i, falling back to DefaultFrameDelay
// when delays is shorter than the frame list or the value is not positive.
func FrameDelay(delays []int, i int) time.Duration {
	if i < 0 || i >= len(delays) || delays[i] <= 0 {
		return DefaultFrameDelay
	}
	return time.Duration(delays[i]) * time.Millisecond
}

// NormalizeDelays returns exactly one positive delay per frame.
func NormalizeDelays(frameCount int, delays []int) []time.Duration {
	if frameCount <= 0 {
		return nil
	}
	out := make([]time.Duration, frameCount)
	for i := range out {
		out[i] = FrameDelay(delays, i)
	}
	return out
}
