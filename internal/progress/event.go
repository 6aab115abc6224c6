package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-site-auditor/internal/audit"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageSessionStart   Stage = "SESSION_START"
	StageUnitDone       Stage = "UNIT_DONE"
	StageSessionDone    Stage = "SESSION_DONE"
	StageSessionStopped Stage = "SESSION_STOPPED"
	StageSessionError   Stage = "SESSION_ERROR"
)

// Outcome labels a finished unit.
type Outcome string

// Unit outcomes.
const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Event captures a single piece of session progress.
type Event struct {
	SessionID string
	TS        time.Time
	Stage     Stage
	Kind      audit.Kind
	// URL, Browser and Outcome are only set on UNIT_DONE events.
	URL     string
	Browser audit.Browser
	Outcome Outcome
	// Completed and Total mirror the session counter after the event.
	Completed int
	Total     int
	// Dur is the unit latency, or the session runtime on terminal stages.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSessionStart, StageSessionDone, StageSessionStopped, StageSessionError:
	case StageUnitDone:
		if e.Outcome == "" {
			return errors.New("unit done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event closes a session.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageSessionDone, StageSessionStopped, StageSessionError:
		return true
	default:
		return false
	}
}

// TerminalStage maps a final session status to its event stage.
func TerminalStage(status audit.Status) Stage {
	switch status {
	case audit.StatusCompleted:
		return StageSessionDone
	case audit.StatusStopped:
		return StageSessionStopped
	default:
		return StageSessionError
	}
}

// OutcomeOf labels a unit by its error.
func OutcomeOf(err error) Outcome {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
