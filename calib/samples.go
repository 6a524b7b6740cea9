package calib

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Sample is one accepted frame's worth of 2D/3D correspondences. Samples are
// immutable once added to a store.
type Sample struct {
	ImagePoints  []r2.Point
	ObjectPoints []r3.Vector
}

// SampleStore accumulates accepted correspondence samples over a calibration
// session, in acceptance order. It is driven by a single goroutine and is not
// safe for concurrent use.
type SampleStore struct {
	samples []Sample
}

// NewSampleStore returns an empty store.
func NewSampleStore() *SampleStore {
	return &SampleStore{}
}

// Add appends one sample. The inputs must be non-empty and of equal length;
// orientation validity is the resolver's responsibility upstream.
func (s *SampleStore) Add(imagePoints []r2.Point, objectPoints []r3.Vector) error {
	if len(imagePoints) == 0 || len(objectPoints) == 0 {
		return errors.New("cannot add an empty sample")
	}
	if len(imagePoints) != len(objectPoints) {
		return errors.Errorf("point count mismatch: %d image, %d object", len(imagePoints), len(objectPoints))
	}
	s.samples = append(s.samples, Sample{ImagePoints: imagePoints, ObjectPoints: objectPoints})
	return nil
}

// Count returns the number of accumulated samples.
func (s *SampleStore) Count() int {
	return len(s.samples)
}

// Samples returns the accumulated samples in insertion order. The returned
// slice is a read-only view; callers must not modify it.
func (s *SampleStore) Samples() []Sample {
	return s.samples
}
