package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/catalog-exporter/internal/catalog"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageTaskFound     Stage = "TASK_FOUND"
	StageTaskNotListed Stage = "TASK_NOT_LISTED"
	StageTaskFailed    Stage = "TASK_FAILED"
	StageTaskDuplicate Stage = "TASK_DUPLICATE"
	StageFieldDegraded Stage = "FIELD_DEGRADED"
)

// Event is one entry in the run's diagnostic stream.
type Event struct {
	// RunID identifies the export run (UUIDv7 in binary form).
	RunID [16]byte
	// TS is the UTC time the emitter observed the milestone.
	TS    time.Time
	Stage Stage
	// SKU is set on task and field events.
	SKU string
	// Field names the degraded field on FIELD_DEGRADED events.
	Field catalog.Field
	// Dur is the task wall time, or the run wall time on RUN_DONE/RUN_ERROR.
	Dur time.Duration
	// Note holds the failure or degradation reason.
	Note string
	// Summary carries the final counters on RUN_DONE/RUN_ERROR.
	Summary catalog.Summary
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTaskFound, StageTaskNotListed, StageTaskFailed, StageTaskDuplicate:
		if e.SKU == "" {
			return fmt.Errorf("%s requires sku", e.Stage)
		}
	case StageFieldDegraded:
		if e.SKU == "" || e.Field == "" {
			return errors.New("field degraded requires sku and field")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// TaskStage maps an outcome kind onto its task stage.
func TaskStage(kind catalog.OutcomeKind) Stage {
	switch kind {
	case catalog.OutcomeFound:
		return StageTaskFound
	case catalog.OutcomeNotListed:
		return StageTaskNotListed
	default:
		return StageTaskFailed
	}
}
