package storage

import (
	"time"

	"github.com/google/uuid"
)

// IngestRun records one completed ingest chunk for auditing.
type IngestRun struct {
	ID               uuid.UUID
	WindowStart      time.Time
	WindowEnd        time.Time
	Bands            int
	DispatchRecords  int
	MissingTelemetry int
	MissingPrice     int
	Trailing         int
	StartedAt        time.Time
	FinishedAt       time.Time
}
