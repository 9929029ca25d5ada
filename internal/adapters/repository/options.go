package repository

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithLabelPrefix sets the level prefix of stored transition labels.
func WithLabelPrefix(prefix string) Option {
	return func(s *SQLStore) {
		if prefix != "" {
			s.labelPrefix = prefix
		}
	}
}
