package render

import "gonum.org/v1/plot/vg"

// Option configures a Renderer.
type Option func(*Renderer)

// WithSize sets the image size.
func WithSize(width, height vg.Length) Option {
	return func(r *Renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}

// WithLabelPrefix sets the level prefix used in transition legends.
func WithLabelPrefix(prefix string) Option {
	return func(r *Renderer) {
		if prefix != "" {
			r.labelPrefix = prefix
		}
	}
}
