package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"animefinder/internal/catalog"
	logx "animefinder/pkg/logx"
)

// memoryStore keeps everything in maps. With a snapshot path it rewrites
// <path> (tmp file + rename) after every mutation and reloads it on open.
type memoryStore struct {
	log logx.Logger

	mu     sync.Mutex
	closed bool

	snapshotPath string

	nextID  int64
	records map[int64]*catalog.Anime
	users   map[int64]time.Time
}

type memorySnapshot struct {
	NextID  int64                `json:"next_id"`
	Records []catalog.Anime      `json:"records"`
	Users   map[string]time.Time `json:"users"`
}

func openMemory(path string, log logx.Logger) (Store, error) {
	s := &memoryStore{
		log:          log,
		snapshotPath: strings.TrimSpace(path),
		records:      map[int64]*catalog.Anime{},
		users:        map[int64]time.Time{},
	}
	if s.snapshotPath == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshotPath), 0o755); err != nil {
		return nil, err
	}
	if err := s.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return s, nil
}

func (s *memoryStore) load() error {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return err
	}
	var snap memorySnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	s.nextID = snap.NextID
	for i := range snap.Records {
		r := snap.Records[i]
		s.records[r.ID] = &r
		if r.ID > s.nextID {
			s.nextID = r.ID
		}
	}
	for k, v := range snap.Users {
		var id int64
		if _, err := fmt.Sscan(k, &id); err == nil {
			s.users[id] = v
		}
	}
	return nil
}

func (s *memoryStore) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	snap := memorySnapshot{NextID: s.nextID, Users: make(map[string]time.Time, len(s.users))}
	for _, r := range s.sortedLocked() {
		snap.Records = append(snap.Records, *r)
	}
	for id, at := range s.users {
		snap.Users[fmt.Sprint(id)] = at
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.snapshotPath)
}

// sortedLocked orders records the way term lookups resolve ties.
func (s *memoryStore) sortedLocked() []*catalog.Anime {
	out := make([]*catalog.Anime, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Published(), out[j].Published()
		if pi != pj {
			return pi
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func clone(r *catalog.Anime) catalog.Anime {
	cp := *r
	cp.SearchTerms = append([]string(nil), r.SearchTerms...)
	return cp
}

func (s *memoryStore) CreatePending(ctx context.Context, name, viewLink, token string) (int64, error) {
	name, viewLink, token, err := validatePending(name, viewLink, token)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	for _, r := range s.records {
		if r.PublishToken == token {
			return 0, fmt.Errorf("%w: token %s already pending", catalog.ErrConflict, token)
		}
	}
	s.nextID++
	r := &catalog.Anime{
		ID:           s.nextID,
		Name:         name,
		SearchTerms:  []string{catalog.NormalizeTerm(name)},
		ViewLink:     viewLink,
		PublishToken: token,
		CreatedAt:    time.Now().UTC(),
	}
	s.records[r.ID] = r
	if err := s.persistLocked(); err != nil {
		delete(s.records, r.ID)
		return 0, err
	}
	return r.ID, nil
}

func (s *memoryStore) FindPendingByToken(ctx context.Context, token string) (catalog.Anime, bool, error) {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return catalog.Anime{}, false, ErrClosed
	}
	if token == "" {
		return catalog.Anime{}, false, nil
	}
	for _, r := range s.records {
		if r.PublishToken == token {
			return clone(r), true, nil
		}
	}
	return catalog.Anime{}, false, nil
}

func (s *memoryStore) Finalize(ctx context.Context, id int64, channelPostID int) error {
	if channelPostID <= 0 {
		return catalog.Validation("channel post id", "must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: record %d", catalog.ErrNotFound, id)
	}
	if !r.Pending() {
		return fmt.Errorf("%w: record %d", catalog.ErrAlreadyPublished, id)
	}
	prev := *r
	r.ChannelPostID = channelPostID
	r.PublishToken = ""
	r.PublishedAt = time.Now().UTC()
	if err := s.persistLocked(); err != nil {
		*r = prev
		return err
	}
	return nil
}

func (s *memoryStore) FindByTerm(ctx context.Context, term string) (catalog.Anime, bool, error) {
	t := catalog.NormalizeTerm(term)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return catalog.Anime{}, false, ErrClosed
	}
	if t == "" {
		return catalog.Anime{}, false, nil
	}
	for _, r := range s.sortedLocked() {
		if r.HasTerm(t) {
			return clone(r), true, nil
		}
	}
	return catalog.Anime{}, false, nil
}

func (s *memoryStore) AddSynonym(ctx context.Context, name, synonym string) error {
	syn := catalog.NormalizeTerm(synonym)
	if syn == "" {
		return catalog.Validation("synonym", "is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, r := range s.sortedLocked() {
		if r.Name != name {
			continue
		}
		if r.HasTerm(syn) {
			return nil
		}
		r.SearchTerms = append(r.SearchTerms, syn)
		if err := s.persistLocked(); err != nil {
			r.SearchTerms = r.SearchTerms[:len(r.SearchTerms)-1]
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: no record named %q", catalog.ErrNotFound, name)
}

func (s *memoryStore) ListAllNames(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) UpsertUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.users[id] = time.Now().UTC()
	return s.persistLocked()
}

func (s *memoryStore) ListAllUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]int64, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *memoryStore) DeletePending(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if token == "" {
		return false, nil
	}
	for id, r := range s.records {
		if r.PublishToken == token {
			delete(s.records, id)
			return true, s.persistLocked()
		}
	}
	return false, nil
}

func (s *memoryStore) PurgePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	n := 0
	for id, r := range s.records {
		if r.Pending() && r.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return n, s.persistLocked()
}

func (s *memoryStore) Stats(ctx context.Context) (catalog.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return catalog.Stats{}, ErrClosed
	}
	st := catalog.Stats{Users: len(s.users)}
	for _, r := range s.records {
		if r.Pending() {
			st.Pending++
		} else {
			st.Published++
		}
	}
	return st, nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
