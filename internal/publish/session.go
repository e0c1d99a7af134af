package publish

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// State is the add-flow position of one administrator.
type State int

const (
	Idle State = iota
	AwaitingName
	AwaitingLink
)

func (s State) String() string {
	switch s {
	case AwaitingName:
		return "awaiting_name"
	case AwaitingLink:
		return "awaiting_link"
	default:
		return "idle"
	}
}

type session struct {
	State State
	Name  string
}

// Sessions holds in-progress add-flows keyed by administrator id. Entries
// idle for longer than the TTL are dropped, which returns that admin to Idle.
// Nothing here is persisted.
type Sessions struct {
	mu  sync.Mutex
	lru *expirable.LRU[int64, session]
}

func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{lru: expirable.NewLRU[int64, session](256, nil, ttl)}
}

func (s *Sessions) get(adminID int64) (session, bool) {
	return s.lru.Get(adminID)
}

func (s *Sessions) put(adminID int64, v session) {
	s.lru.Add(adminID, v)
}

func (s *Sessions) drop(adminID int64) bool {
	return s.lru.Remove(adminID)
}

// State returns the admin's current state.
func (s *Sessions) State(adminID int64) State {
	v, ok := s.lru.Peek(adminID)
	if !ok {
		return Idle
	}
	return v.State
}

func (s *Sessions) Len() int { return s.lru.Len() }
