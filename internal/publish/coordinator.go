// Package publish runs the administrator add-flow and correlates channel
// posts back to the pending records it creates.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"animefinder/internal/catalog"
	"animefinder/internal/eventbus"
	"animefinder/internal/telemetry"
	logx "animefinder/pkg/logx"
)

// Store is the subset of storage.Store the coordinator needs.
type Store interface {
	CreatePending(ctx context.Context, name, viewLink, token string) (int64, error)
	FindPendingByToken(ctx context.Context, token string) (catalog.Anime, bool, error)
	Finalize(ctx context.Context, id int64, channelPostID int) error
	DeletePending(ctx context.Context, token string) (bool, error)
}

// Broadcaster announces a freshly published record to all users.
type Broadcaster interface {
	Broadcast(ctx context.Context, name string, channelPostID int) (jobID string, err error)
}

// StepKind describes what HandleText did with the admin's text.
type StepKind int

const (
	// StepNotConsumed: the admin is idle; the text is a regular query.
	StepNotConsumed StepKind = iota
	// StepNameRejected: blank name, still awaiting a name.
	StepNameRejected
	// StepNameAccepted: name stored, now awaiting the link.
	StepNameAccepted
	// StepCreated: pending record created; Token must go into the channel post.
	StepCreated
	// StepFailed: the record could not be created; the session is over.
	StepFailed
)

type Step struct {
	Kind  StepKind
	Name  string
	Token string
	Err   error
}

// CorrelationKind describes the outcome of a channel post.
type CorrelationKind int

const (
	// NoToken: the post carries no token and is ignored.
	NoToken CorrelationKind = iota
	// Published: the pending record was finalized and the broadcast started.
	Published
	// Unmatched: the post carries a token with no pending record.
	Unmatched
)

type Correlation struct {
	Kind   CorrelationKind
	Token  string
	Record catalog.Anime
	// JobID is the broadcast job started for a Published record.
	JobID string
	Err   error
}

type Coordinator struct {
	store     Store
	sessions  *Sessions
	broadcast Broadcaster
	bus       eventbus.Bus
	log       logx.Logger

	newToken func() (string, error)
}

func NewCoordinator(store Store, sessions *Sessions, b Broadcaster, bus eventbus.Bus, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sessions == nil {
		sessions = NewSessions(0)
	}
	return &Coordinator{
		store:     store,
		sessions:  sessions,
		broadcast: b,
		bus:       bus,
		log:       log.With(logx.String("comp", "publish")),
		newToken:  NewToken,
	}
}

// Begin starts (or restarts) the add-flow for adminID.
func (c *Coordinator) Begin(adminID int64) {
	c.sessions.mu.Lock()
	defer c.sessions.mu.Unlock()
	c.sessions.put(adminID, session{State: AwaitingName})
	c.log.Debug("add-flow started", logx.Int64("admin_id", adminID))
}

// Cancel abandons the admin's add-flow. It reports whether one was active.
func (c *Coordinator) Cancel(adminID int64) bool {
	c.sessions.mu.Lock()
	defer c.sessions.mu.Unlock()
	return c.sessions.drop(adminID)
}

// State returns the admin's add-flow state.
func (c *Coordinator) State(adminID int64) State { return c.sessions.State(adminID) }

// HandleText feeds admin text into the add-flow. Text from an idle admin is
// not consumed and must be handled as a query by the caller.
func (c *Coordinator) HandleText(ctx context.Context, adminID int64, text string) Step {
	step, name := c.advance(adminID, text)
	if step.Kind != StepCreated {
		return step
	}

	// the store round-trip runs without the session lock
	token, err := c.createPending(ctx, name, text)
	if err != nil {
		c.log.Warn("create pending failed",
			logx.Int64("admin_id", adminID), logx.String("name", name), logx.Err(err))
		return Step{Kind: StepFailed, Name: name, Token: token, Err: err}
	}
	c.log.Info("pending record created", logx.String("name", name), logx.String("token", token))
	return Step{Kind: StepCreated, Name: name, Token: token}
}

// advance moves the session one step under the lock. A StepCreated result
// means the link arrived: the session is gone and name must be stored.
func (c *Coordinator) advance(adminID int64, text string) (Step, string) {
	c.sessions.mu.Lock()
	defer c.sessions.mu.Unlock()

	s, ok := c.sessions.get(adminID)
	if !ok {
		return Step{Kind: StepNotConsumed}, ""
	}
	switch s.State {
	case AwaitingName:
		if strings.TrimSpace(text) == "" {
			c.sessions.put(adminID, s)
			return Step{Kind: StepNameRejected}, ""
		}
		c.sessions.put(adminID, session{State: AwaitingLink, Name: text})
		return Step{Kind: StepNameAccepted, Name: text}, ""
	case AwaitingLink:
		c.sessions.drop(adminID)
		return Step{Kind: StepCreated}, s.Name
	}
	return Step{Kind: StepNotConsumed}, ""
}

// createPending retries once on a token collision.
func (c *Coordinator) createPending(ctx context.Context, name, link string) (string, error) {
	var (
		token string
		err   error
	)
	for attempt := 0; attempt < 2; attempt++ {
		token, err = c.newToken()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		_, err = c.store.CreatePending(ctx, name, link, token)
		if !errors.Is(err, catalog.ErrConflict) {
			return token, err
		}
		c.log.Debug("token collision", logx.String("token", token), logx.Int("attempt", attempt+1))
	}
	return token, err
}

// Correlate matches a channel post to a pending record by the token in its
// text or caption. On a match the record is finalized, a RecordPublished
// event is emitted and the broadcast is started.
func (c *Coordinator) Correlate(ctx context.Context, channelPostID int, body string) Correlation {
	token, ok := ExtractToken(body)
	if !ok {
		return Correlation{Kind: NoToken}
	}

	rec, found, err := c.store.FindPendingByToken(ctx, token)
	if err != nil {
		return Correlation{Kind: Unmatched, Token: token, Err: err}
	}
	if !found {
		telemetry.CorrelationMisses.Inc()
		c.log.Info("channel post token has no pending record", logx.String("token", token), logx.Int("post_id", channelPostID))
		return Correlation{Kind: Unmatched, Token: token}
	}

	if err := c.store.Finalize(ctx, rec.ID, channelPostID); err != nil {
		// lost a race with another post carrying the same token
		telemetry.CorrelationMisses.Inc()
		c.log.Warn("finalize failed", logx.String("token", token), logx.Int64("record_id", rec.ID), logx.Err(err))
		return Correlation{Kind: Unmatched, Token: token, Record: rec, Err: err}
	}
	rec.PublishToken = ""
	rec.ChannelPostID = channelPostID
	telemetry.RecordsPublished.Inc()
	c.log.Info("record published",
		logx.String("name", rec.Name), logx.Int64("record_id", rec.ID), logx.Int("post_id", channelPostID))

	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.RecordPublished, Data: eventbus.PublishedData{
			RecordID: rec.ID, Name: rec.Name, ChannelPostID: channelPostID,
		}})
	}

	out := Correlation{Kind: Published, Token: token, Record: rec}
	if c.broadcast != nil {
		jobID, err := c.broadcast.Broadcast(ctx, rec.Name, channelPostID)
		if err != nil {
			c.log.Warn("broadcast not started", logx.String("name", rec.Name), logx.Err(err))
		}
		out.JobID = jobID
	}
	return out
}

// Discard deletes an abandoned pending record by token.
func (c *Coordinator) Discard(ctx context.Context, token string) (bool, error) {
	ok, err := c.store.DeletePending(ctx, token)
	if err == nil && ok {
		c.log.Info("pending record discarded", logx.String("token", token))
	}
	return ok, err
}
