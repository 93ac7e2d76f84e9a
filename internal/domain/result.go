package domain

import "time"

// Result is a computed value for a resource key at a point in time. Once
// computed it is immutable; recomputations produce new Results.
type Result struct {
	Key         string
	Data        []byte
	ContentType string
	StatusCode  int
	ComputedAt  time.Time
}
