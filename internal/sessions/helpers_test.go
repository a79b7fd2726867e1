package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"store-sessions/internal/models"
)

// ==========================
// Fake Session Store
// ==========================

type fakeStore struct {
	mu         sync.Mutex
	live       map[string]bool
	probeErr   map[string]error
	destroyErr map[string]error
	delay      map[string]time.Duration
	probed     map[string]int
	destroyed  map[string]int
	inFlight   int
	maxFlight  int
}

func newFakeStore(live ...string) *fakeStore {
	s := &fakeStore{
		live:       make(map[string]bool),
		probeErr:   make(map[string]error),
		destroyErr: make(map[string]error),
		delay:      make(map[string]time.Duration),
		probed:     make(map[string]int),
		destroyed:  make(map[string]int),
	}
	for _, id := range live {
		s.live[id] = true
	}
	return s
}

func (s *fakeStore) enter(id string) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxFlight {
		s.maxFlight = s.inFlight
	}
	d := s.delay[id]
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
}

func (s *fakeStore) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *fakeStore) IsLive(_ context.Context, id string) (bool, error) {
	s.enter(id)
	defer s.leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.probed[id]++
	if err := s.probeErr[id]; err != nil {
		return false, err
	}
	return s.live[id], nil
}

func (s *fakeStore) Destroy(_ context.Context, id string) error {
	s.enter(id)
	defer s.leave()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed[id]++
	delete(s.live, id)
	return s.destroyErr[id]
}

func (s *fakeStore) destroyCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed[id]
}

func (s *fakeStore) totalDestroyed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.destroyed {
		n += c
	}
	return n
}

// ==========================
// Mock Persister
// ==========================

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Save(ctx context.Context, p Principal) (Principal, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Principal), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

type sessionID string

func (s sessionID) ID() string { return string(s) }

type recordingRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingRecorder) Record(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func record(id, addr string) models.SessionRecord {
	return models.SessionRecord{SessionID: id, SourceAddress: addr, LastActivity: fixedNow.Add(-time.Hour)}
}

func ids(list []models.SessionRecord) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.SessionID)
	}
	return out
}

func authenticated(v bool) Authenticator {
	return AuthenticatorFunc(func(context.Context) bool { return v })
}

// switchableAuth lets a test flip authentication after Run.
type switchableAuth struct {
	mu sync.Mutex
	on bool
}

func (a *switchableAuth) IsAuthenticated(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.on
}

func (a *switchableAuth) set(v bool) {
	a.mu.Lock()
	a.on = v
	a.mu.Unlock()
}

// savingPersister echoes the principal back and counts saves.
type savingPersister struct {
	mu    sync.Mutex
	saves int
	err   error
	lists [][]models.SessionRecord
}

func (p *savingPersister) Save(_ context.Context, pr Principal) (Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.err != nil {
		return nil, p.err
	}
	p.lists = append(p.lists, append([]models.SessionRecord(nil), pr.SessionList()...))
	return pr, nil
}
