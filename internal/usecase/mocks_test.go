package usecase

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/integration/monday"
	"github.com/xavierca1/leadflow/internal/infra/integration/whatsapp"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

// MockCRM
type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) FetchItem(ctx context.Context, itemID string) (*monday.Item, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*monday.Item), args.Error(1)
}

func (m *MockCRM) UpdateStatus(ctx context.Context, itemID, status string) error {
	args := m.Called(ctx, itemID, status)
	return args.Error(0)
}

func (m *MockCRM) ListItemIDsByStatus(ctx context.Context, status string) ([]string, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockMessenger
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) SendTemplate(ctx context.Context, input whatsapp.SendMessageInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.LeadEvent
}

func (p *recordingPublisher) PublishLeadEvent(_ context.Context, event queue.LeadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// memoryStore mirrors the conditional-update semantics of the SQL repositories.
type memoryStore struct {
	mu    sync.Mutex
	leads map[string]*entity.Lead
}

func newMemoryStore() *memoryStore {
	return &memoryStore{leads: map[string]*entity.Lead{}}
}

func (s *memoryStore) Create(_ context.Context, lead *entity.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.ExternalID == lead.ExternalID {
			return entity.ErrLeadAlreadyExists
		}
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

func (s *memoryStore) FindByExternalID(_ context.Context, externalID string) (*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.leads {
		if l.ExternalID == externalID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, entity.ErrLeadNotFound
}

func (s *memoryStore) ListDue(_ context.Context, kind entity.DueKind, now time.Time, limit int) ([]*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Lead
	for _, l := range s.leads {
		var due bool
		switch kind {
		case entity.DueInitialMessage:
			due = l.InitialMessageDue(now)
		case entity.DueFollowup:
			due = l.FollowupDue(now)
		}
		if due && !claimed(l, now) {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) MarkInitialSent(_ context.Context, id, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.FirstMessageSent || l.IsDone {
		return false, nil
	}
	l.FirstMessageSent = true
	l.Status = status
	l.Attempts = 0
	l.ClaimedUntil = nil
	l.UpdatedAt = at
	return true, nil
}

func (s *memoryStore) MarkDone(_ context.Context, id, status string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.IsDone {
		return false, nil
	}
	l.IsDone = true
	if status != "" {
		l.Status = status
	}
	l.ClaimedUntil = nil
	l.UpdatedAt = at
	return true, nil
}

func (s *memoryStore) MarkRepliedByPhones(_ context.Context, phones []string, status string, at time.Time) (*entity.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *entity.Lead
	for _, l := range s.leads {
		if l.IsDone || !slices.Contains(phones, l.Phone) {
			continue
		}
		if match == nil || l.CreatedAt.After(match.CreatedAt) {
			match = l
		}
	}
	if match == nil {
		return nil, nil
	}
	match.IsDone = true
	match.Status = status
	match.ClaimedUntil = nil
	match.UpdatedAt = at
	cp := *match
	return &cp, nil
}

func (s *memoryStore) Claim(_ context.Context, id string, kind entity.DueKind, now, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.IsDone || l.FirstMessageSent != (kind == entity.DueFollowup) || claimed(l, now) {
		return false, nil
	}
	u := until
	l.ClaimedUntil = &u
	return true, nil
}

func (s *memoryStore) Reschedule(_ context.Context, id string, kind entity.DueKind, next, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.IsDone || l.FirstMessageSent != (kind == entity.DueFollowup) {
		return false, nil
	}
	n := next
	if kind == entity.DueFollowup {
		l.FollowupDueAt = &n
	} else {
		l.FirstMessageDueAt = &n
	}
	l.Attempts++
	l.ClaimedUntil = nil
	l.UpdatedAt = at
	return true, nil
}

func claimed(l *entity.Lead, now time.Time) bool {
	return l.ClaimedUntil != nil && l.ClaimedUntil.After(now)
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) get(externalID string) *entity.Lead {
	l, _ := s.FindByExternalID(context.Background(), externalID)
	return l
}
