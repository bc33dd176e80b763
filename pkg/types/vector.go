package types

// ResourceClass identifies a schedulable resource dimension
type ResourceClass string

const (
	ResourceCPU    ResourceClass = "cpu"
	ResourceMemory ResourceClass = "memory"
	ResourceGPU    ResourceClass = "gpu"
)

// Vector is a quantity per resource class. GPU quantities may be
// fractional (e.g. 0.5 of a device).
type Vector map[ResourceClass]float64

// Clone returns an independent copy
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for c, q := range v {
		out[c] = q
	}
	return out
}

// Add returns v + other
func (v Vector) Add(other Vector) Vector {
	out := v.Clone()
	for c, q := range other {
		out[c] += q
	}
	return out
}

// Sub returns v - other, clamped at zero
func (v Vector) Sub(other Vector) Vector {
	out := v.Clone()
	for c, q := range other {
		out[c] -= q
		if out[c] < 0 {
			out[c] = 0
		}
	}
	return out
}

// Fits reports whether request fits entirely within v (per class)
func (v Vector) Fits(request Vector) bool {
	for c, q := range request {
		if q > v[c] {
			return false
		}
	}
	return true
}

// IsZero reports whether every class has zero quantity
func (v Vector) IsZero() bool {
	for _, q := range v {
		if q > 0 {
			return false
		}
	}
	return true
}

// MaxRatio returns the largest per-class ratio of v over capacity,
// skipping classes the capacity does not carry. This is the dominant
// share used for fairness accounting.
func (v Vector) MaxRatio(capacity Vector) float64 {
	max := 0.0
	for c, q := range v {
		total := capacity[c]
		if total <= 0 {
			continue
		}
		if r := q / total; r > max {
			max = r
		}
	}
	return max
}

// Min returns the per-class minimum of v and other
func (v Vector) Min(other Vector) Vector {
	out := make(Vector, len(v))
	for c, q := range v {
		if o := other[c]; o < q {
			out[c] = o
		} else {
			out[c] = q
		}
	}
	return out
}
