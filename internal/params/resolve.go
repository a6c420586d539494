package params

import (
	"fmt"
	"path/filepath"
)

// DefaultOpacity applies when neither a flag nor a cached value supplies one.
const DefaultOpacity = 1.0

// ConfigError reports an invalid explicit parameter. Nothing is written to
// the cache when one is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Explicit carries the parameters the user supplied on the command line.
// Nil means the flag was not given, which is distinct from a zero value.
type Explicit struct {
	TargetX *int
	TargetY *int
	Opacity *float64
}

// Resolved is the final placement decision for one run: computed once
// before the first surface commit, immutable afterward.
type Resolved struct {
	TargetX int
	TargetY int
	Opacity float64
}

// Entry converts the resolved values into a full cache record, so a later
// run supplying only one flag picks the rest up from this run.
func (r Resolved) Entry() Entry {
	x, y, o := r.TargetX, r.TargetY, r.Opacity
	return Entry{TargetX: &x, TargetY: &y, Opacity: &o}
}

// Resolve computes the target point and opacity for an image of the given
// dimensions. Each field resolves independently: explicit flag, then cached
// value, then default (image center, opacity 1.0). Explicit values are
// validated against the image bounds before anything else happens; cached
// coordinates from a differently-sized image fall back to the default
// rather than placing the target outside the image.
func Resolve(width, height int, explicit Explicit, cached *Entry) (Resolved, error) {
	if explicit.TargetX != nil {
		if x := *explicit.TargetX; x < 0 || x >= width {
			return Resolved{}, &ConfigError{
				Field:  "target-x",
				Reason: fmt.Sprintf("%d is outside image width 0..%d", x, width-1),
			}
		}
	}
	if explicit.TargetY != nil {
		if y := *explicit.TargetY; y < 0 || y >= height {
			return Resolved{}, &ConfigError{
				Field:  "target-y",
				Reason: fmt.Sprintf("%d is outside image height 0..%d", y, height-1),
			}
		}
	}
	if explicit.Opacity != nil {
		if o := *explicit.Opacity; o < 0 || o > 1 {
			return Resolved{}, &ConfigError{
				Field:  "opacity",
				Reason: fmt.Sprintf("%g is outside 0.0..1.0", o),
			}
		}
	}

	r := Resolved{
		TargetX: width / 2,
		TargetY: height / 2,
		Opacity: DefaultOpacity,
	}
	if cached != nil {
		if cached.TargetX != nil && *cached.TargetX >= 0 && *cached.TargetX < width {
			r.TargetX = *cached.TargetX
		}
		if cached.TargetY != nil && *cached.TargetY >= 0 && *cached.TargetY < height {
			r.TargetY = *cached.TargetY
		}
		if cached.Opacity != nil && *cached.Opacity >= 0 && *cached.Opacity <= 1 {
			r.Opacity = *cached.Opacity
		}
	}
	if explicit.TargetX != nil {
		r.TargetX = *explicit.TargetX
	}
	if explicit.TargetY != nil {
		r.TargetY = *explicit.TargetY
	}
	if explicit.Opacity != nil {
		r.Opacity = *explicit.Opacity
	}
	return r, nil
}

// Canonicalize turns path into the cache key form: absolute with symlinks
// resolved, so every way of naming the same file hits the same entry.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
