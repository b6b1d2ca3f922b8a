package main

import (
	"log"
	"sync"
	"time"
)

// Event types for analytics tracking
const (
	EvtConnect     = "connect"
	EvtDisconnect  = "disconnect"
	EvtRoomCreated = "room_created"
	EvtMatchStart  = "match_start"
	EvtMatchEnd    = "match_end"
	EvtHit         = "hit"
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	AccountID int64
	RoomCode  string
	Data      string
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes. A nil
// *Analytics is valid and drops everything, so game code can call Track
// unconditionally.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, 1024),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, accountID int64, roomCode, data string) {
	if a == nil {
		return
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		AccountID: accountID,
		RoomCode:  roomCode,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full — drop event rather than blocking game loop
	}
}

// Stop flushes pending events and shuts the writer down.
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	close(a.stop)
	a.wg.Wait()
}

// writer batches events and flushes them every few seconds or when the
// batch grows large.
func (a *Analytics) writer() {
	defer a.wg.Done()

	const (
		flushInterval = 5 * time.Second
		maxBatch      = 100
	)

	batch := make([]AnalyticsEvent, 0, maxBatch)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.db.InsertEvents(batch); err != nil {
			log.Printf("analytics flush failed: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-a.events:
			batch = append(batch, ev)
			if len(batch) >= maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			// Drain whatever is queued, then flush once.
			for {
				select {
				case ev := <-a.events:
					batch = append(batch, ev)
				default:
					flush()
					return
				}
			}
		}
	}
}
