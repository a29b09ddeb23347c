// Package progress defines the milestone events emitted by the crawl
// pipeline and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageBatchStart Stage = "BATCH_START"
	StageBatchDone  Stage = "BATCH_DONE"
	StageCityStart  Stage = "CITY_START"
	StageCityDone   Stage = "CITY_DONE"
	StageCityError  Stage = "CITY_ERROR"
	StagePageDone   Stage = "PAGE_DONE"
	StageFetchRetry Stage = "FETCH_RETRY"
	StageCaptcha    Stage = "CAPTCHA"
)

// Event captures one milestone of crawl progress.
type Event struct {
	// RunID identifies the batch run the event belongs to.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// City scopes city and page events to a target city.
	City string
	// URL is the optional page URL.
	URL string
	// Page is the 1-based page number for page-scoped events.
	Page int
	// Venues counts validated records added by the event's scope.
	Venues int
	// Errors counts rejected or failed candidates in the event's scope.
	Errors int
	// Dur captures elapsed time for city and batch completions.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse checks before an event enters the hub.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBatchStart, StageBatchDone, StageCaptcha:
	case StageCityStart, StageCityDone, StageCityError, StagePageDone, StageFetchRetry:
		if e.City == "" {
			return fmt.Errorf("%s requires a city", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
