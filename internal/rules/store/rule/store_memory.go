// Package rule persists auto-approval rules. The in-memory store backs unit
// tests and dev mode; PostgresStore is the production implementation.
package rule

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"leadgate/internal/rules/models"
	"leadgate/pkg/platform/sentinel"
)

// ErrNotFound is returned when a rule id does not exist.
var ErrNotFound = fmt.Errorf("rule: %w", sentinel.ErrNotFound)

// InMemoryStore keeps rules in a map guarded by a RWMutex.
type InMemoryStore struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]*models.Rule
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{rules: make(map[uuid.UUID]*models.Rule)}
}

func (s *InMemoryStore) Create(ctx context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) Update(ctx context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[r.ID]; !ok {
		return ErrNotFound
	}
	s.rules[r.ID] = cloneRule(r)
	return nil
}

func (s *InMemoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRule(r), nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// List returns all rules ordered by priority then name for stable output.
func (s *InMemoryStore) List(ctx context.Context) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, cloneRule(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func cloneRule(r *models.Rule) *models.Rule {
	cp := *r
	cp.Conditions = append([]models.Condition(nil), r.Conditions...)
	if r.ConfidenceThreshold != nil {
		t := *r.ConfidenceThreshold
		cp.ConfidenceThreshold = &t
	}
	return &cp
}
