package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/veganvoyager/venue-crawler/internal/progress"
)

// CityProgress is the live snapshot of one city's crawl, served by the
// status API.
type CityProgress struct {
	City      string    `json:"city"`
	Status    string    `json:"status"`
	Pages     int       `json:"pages"`
	Venues    int       `json:"venues"`
	Errors    int       `json:"errors"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StoreSink keeps an in-memory snapshot of per-city progress. It backs the
// /v1/progress endpoint and is safe for concurrent reads.
type StoreSink struct {
	mu     sync.RWMutex
	cities map[string]*CityProgress
	order  []string
}

// NewStoreSink builds an empty StoreSink.
func NewStoreSink() *StoreSink {
	return &StoreSink{cities: make(map[string]*CityProgress)}
}

// Consume folds the batch into the snapshot.
func (s *StoreSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.City == "" {
			continue
		}
		s.apply(evt)
	}
	return nil
}

func (s *StoreSink) apply(evt progress.Event) {
	entry, ok := s.cities[evt.City]
	if !ok {
		entry = &CityProgress{City: evt.City}
		s.cities[evt.City] = entry
		s.order = append(s.order, evt.City)
	}
	entry.UpdatedAt = evt.TS
	switch evt.Stage {
	case progress.StageCityStart:
		entry.Status = "running"
	case progress.StageCityDone:
		entry.Status = "done"
		entry.Venues = evt.Venues
		entry.Errors = evt.Errors
	case progress.StageCityError:
		entry.Status = "failed"
		entry.Note = evt.Note
	case progress.StagePageDone:
		entry.Pages++
		entry.Venues += evt.Venues
		entry.Errors += evt.Errors
	}
}

// Snapshot returns per-city progress in first-seen order.
func (s *StoreSink) Snapshot() []CityProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CityProgress, 0, len(s.order))
	for _, city := range s.order {
		out = append(out, *s.cities[city])
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
