package lifecycle_test

import (
	"context"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/myrjola/profilescan/internal/models"
	"slices"
	"sync"
)

// memoryStore is an in-memory lifecycle.Store that remembers every state a record was stored in.
type memoryStore struct {
	mu       sync.Mutex
	records  map[string]models.AssessmentRecord
	history  map[string][]models.State
	failWith error
	// failOnce fails the next Update that stores the given state.
	failOnce map[models.State]error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		mu:       sync.Mutex{},
		records:  make(map[string]models.AssessmentRecord),
		history:  make(map[string][]models.State),
		failWith: nil,
		failOnce: make(map[models.State]error),
	}
}

func (s *memoryStore) Create(_ context.Context, record models.AssessmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Responses = slices.Clone(record.Responses)
	s.records[record.ID] = record
	s.history[record.ID] = append(s.history[record.ID], record.State)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (models.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return models.AssessmentRecord{}, models.ErrNotFound
	}
	record.Responses = slices.Clone(record.Responses)
	return record, nil
}

func (s *memoryStore) Update(_ context.Context, record models.AssessmentRecord) (models.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return models.AssessmentRecord{}, s.failWith
	}
	if err, ok := s.failOnce[record.State]; ok {
		delete(s.failOnce, record.State)
		return models.AssessmentRecord{}, err
	}
	stored, ok := s.records[record.ID]
	if !ok {
		return models.AssessmentRecord{}, models.ErrNotFound
	}
	if stored.Version != record.Version {
		return models.AssessmentRecord{}, errors.Wrap(models.ErrStaleVersion, "update")
	}
	record.Version++
	record.Responses = slices.Clone(record.Responses)
	s.records[record.ID] = record
	s.history[record.ID] = append(s.history[record.ID], record.State)
	return record, nil
}

func (s *memoryStore) LatestFinalized(
	_ context.Context,
	userID string,
	assessmentType models.AssessmentType,
) (models.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		latest models.AssessmentRecord
		found  bool
	)
	for _, record := range s.records {
		if record.UserID != userID || record.AssessmentType != assessmentType || record.FinalizedAt == nil {
			continue
		}
		if !found || record.FinalizedAt.After(*latest.FinalizedAt) {
			latest = record
			found = true
		}
	}
	if !found {
		return models.AssessmentRecord{}, models.ErrNotFound
	}
	return latest, nil
}

func (s *memoryStore) states(id string) []models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history[id])
}

func (s *memoryStore) put(record models.AssessmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
}

func (s *memoryStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

func (s *memoryStore) failNext(state models.State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOnce[state] = err
}
