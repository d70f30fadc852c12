package bids

import (
	"fmt"
	"time"
)

// maxSampledErrors bounds how many per-record errors a Summary retains.
const maxSampledErrors = 20

// MissingTelemetryError reports a bid for a unit interval absent from dispatch telemetry.
type MissingTelemetryError struct {
	Interval time.Time
	DUID     string
}

func (e *MissingTelemetryError) Error() string {
	return fmt.Sprintf("no dispatch telemetry for %s at %s", e.DUID, e.Interval.Format(time.RFC3339))
}

// Summary reports what a normalisation batch kept and dropped.
type Summary struct {
	VolumeOffers      int
	Bands             int
	ZeroVolumeBands   int
	MissingPrice      int
	MissingTelemetry  int
	DispatchRecords   int
	TrailingIntervals int
	Errors            []error
}

func (s *Summary) record(err error) {
	if len(s.Errors) < maxSampledErrors {
		s.Errors = append(s.Errors, err)
	}
}

// Merge adds another batch's counts.
func (s *Summary) Merge(other Summary) {
	s.VolumeOffers += other.VolumeOffers
	s.Bands += other.Bands
	s.ZeroVolumeBands += other.ZeroVolumeBands
	s.MissingPrice += other.MissingPrice
	s.MissingTelemetry += other.MissingTelemetry
	s.DispatchRecords += other.DispatchRecords
	s.TrailingIntervals += other.TrailingIntervals
	for _, err := range other.Errors {
		s.record(err)
	}
}

// Dropped is the number of offers discarded for missing joins.
func (s Summary) Dropped() int {
	return s.MissingPrice + s.MissingTelemetry
}
