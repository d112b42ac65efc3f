// Package request persists approval requests and their transition history.
// Both implementations apply status changes through a guarded compare-and-set
// so concurrent deciders cannot double-resolve a request.
package request

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadgate/internal/approval/models"
	"leadgate/pkg/platform/sentinel"
)

var (
	// ErrNotFound is returned when a request id does not exist.
	ErrNotFound = fmt.Errorf("approval request: %w", sentinel.ErrNotFound)
	// ErrStale is returned when the request's current status is not among
	// the expected from-states of a transition.
	ErrStale = fmt.Errorf("approval request status changed: %w", sentinel.ErrConflict)
)

// InMemoryStore keeps requests and history in maps guarded by one mutex.
type InMemoryStore struct {
	mu          sync.RWMutex
	requests    map[uuid.UUID]*models.ApprovalRequest
	transitions []models.Transition
	nextID      int64
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[uuid.UUID]*models.ApprovalRequest)}
}

func (s *InMemoryStore) Create(ctx context.Context, r *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.ID] = r.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// Transition moves the request to the new status if and only if its current
// status is in from, applying the stamp in the same guarded write and
// appending a history record. Returns the updated request.
func (s *InMemoryStore) Transition(ctx context.Context, id uuid.UUID, from []models.Status, to models.Status, stamp models.TransitionStamp) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !statusIn(r.Status, from) {
		return nil, ErrStale
	}

	prev := r.Status
	r.Status = to
	applyStamp(r, stamp)

	s.nextID++
	occurred := time.Now().UTC()
	if stamp.DecidedAt != nil {
		occurred = *stamp.DecidedAt
	} else if stamp.EscalatedAt != nil {
		occurred = *stamp.EscalatedAt
	}
	s.transitions = append(s.transitions, models.Transition{
		ID:         s.nextID,
		RequestID:  id,
		From:       prev,
		To:         to,
		DecidedBy:  stamp.HistoryActor(),
		Reason:     stamp.HistoryReason(),
		OccurredAt: occurred,
	})
	return r.Clone(), nil
}

// ListPending returns decidable requests oldest first. Escalated requests are
// included; they are still waiting on a human.
func (s *InMemoryStore) ListPending(ctx context.Context, approvalType string, limit int) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ApprovalRequest, 0)
	for _, r := range s.requests {
		if !r.Status.Decidable() {
			continue
		}
		if approvalType != "" && r.ApprovalType != approvalType {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListDue returns decidable requests whose timeout has passed.
func (s *InMemoryStore) ListDue(ctx context.Context, now time.Time) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ApprovalRequest, 0)
	for _, r := range s.requests {
		if !r.Status.Decidable() || r.TimeoutAt == nil {
			continue
		}
		if !r.TimeoutAt.After(now) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, r := range s.requests {
		counts[r.Status]++
	}
	return counts, nil
}

func (s *InMemoryStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.requests {
		if r.Status.Decidable() && r.TimeoutAt != nil && !r.TimeoutAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) ListTransitions(ctx context.Context, requestID uuid.UUID) ([]models.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transition, 0)
	for _, t := range s.transitions {
		if t.RequestID == requestID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ListByMatchedRule returns resolved requests the given rule matched, for the
// threshold optimizer and the performance endpoint.
func (s *InMemoryStore) ListByMatchedRule(ctx context.Context, ruleID uuid.UUID) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ApprovalRequest, 0)
	for _, r := range s.requests {
		if r.MatchedRuleID != nil && *r.MatchedRuleID == ruleID && r.Status.Terminal() {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func applyStamp(r *models.ApprovalRequest, stamp models.TransitionStamp) {
	if stamp.DecidedAt != nil {
		t := *stamp.DecidedAt
		r.DecidedAt = &t
	}
	if stamp.DecidedBy != "" {
		r.DecidedBy = stamp.DecidedBy
	}
	if stamp.DecisionReason != "" {
		r.DecisionReason = stamp.DecisionReason
	}
	if stamp.MatchedRuleID != nil {
		id := *stamp.MatchedRuleID
		r.MatchedRuleID = &id
	}
	if stamp.TimeoutAt != nil {
		t := *stamp.TimeoutAt
		r.TimeoutAt = &t
	}
	if stamp.ClearTimeout {
		r.TimeoutAt = nil
	}
	if stamp.EscalatedAt != nil {
		t := *stamp.EscalatedAt
		r.EscalatedAt = &t
	}
}

func statusIn(s models.Status, set []models.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
