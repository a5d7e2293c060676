package matching

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithIndex replaces the default linear scan.
func WithIndex(idx Index) Option {
	return func(m *Matcher) {
		if idx != nil {
			m.index = idx
		}
	}
}
