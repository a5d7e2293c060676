package cooldown

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithCommandBuffer sets how many reset commands may wait for Drain.
func WithCommandBuffer(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}
