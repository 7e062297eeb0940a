// Package events publishes judging notifications for the notification
// layer. Services receive a Publisher; nothing here is process-global.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/judgeserver/internal/mq"
	"github.com/jjudge-oj/judgeserver/types"
)

// Type names an event.
type Type string

const (
	SubmissionResolved Type = "submission.resolved"
	LeaderboardChanged Type = "leaderboard.changed"
)

// DefaultChannel is the broker channel events are published on.
const DefaultChannel = "judge.events"

// Event is a single notification. Exactly one of the payload fields is set,
// matching Type.
type Event struct {
	ID         string              `json:"id"`
	Type       Type                `json:"type"`
	OccurredAt time.Time           `json:"occurred_at"`
	Submission *SubmissionPayload  `json:"submission,omitempty"`
	Board      *LeaderboardPayload `json:"leaderboard,omitempty"`
}

// SubmissionPayload describes a submission that reached a terminal verdict.
type SubmissionPayload struct {
	SubmissionID int64         `json:"submission_id"`
	UserID       int           `json:"user_id"`
	ProblemID    int           `json:"problem_id"`
	ContestID    int           `json:"contest_id,omitempty"`
	Verdict      types.Verdict `json:"verdict"`
}

// LeaderboardPayload identifies a contest whose standings changed.
type LeaderboardPayload struct {
	ContestID int `json:"contest_id"`
}

// NewSubmissionResolved builds the event for a terminal submission.
func NewSubmissionResolved(sub types.Submission) Event {
	payload := &SubmissionPayload{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ProblemID:    sub.ProblemID,
		Verdict:      sub.Verdict,
	}
	if sub.Contest != nil {
		payload.ContestID = sub.Contest.ContestID
	}
	return Event{Type: SubmissionResolved, Submission: payload}
}

// NewLeaderboardChanged builds the event for a contest standings change.
func NewLeaderboardChanged(contestID int) Event {
	return Event{Type: LeaderboardChanged, Board: &LeaderboardPayload{ContestID: contestID}}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// MQPublisher serialises events to JSON and publishes them on a broker
// channel.
type MQPublisher struct {
	queue   *mq.MQ
	channel string
	now     func() time.Time
}

// NewMQPublisher returns a publisher on channel, or DefaultChannel when
// channel is empty.
func NewMQPublisher(queue *mq.MQ, channel string) *MQPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &MQPublisher{queue: queue, channel: channel, now: time.Now}
}

func (p *MQPublisher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if _, err := p.queue.Publish(ctx, p.channel, data, map[string]string{"event_type": string(event.Type)}); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Decode parses an event published by MQPublisher.
func Decode(data []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return event, nil
}

// Recorder keeps published events in memory. Tests use it to assert on
// emitted notifications.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of type t were published.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
