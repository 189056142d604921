// Package memory is an in-process implementation of the event and
// participation stores. It keeps the Postgres repositories' contracts
// (sentinel errors, one row per event and user, ordering) and runs each
// transaction alone, restoring the previous state when it fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
)

type txKey struct{}

type eventRecord struct {
	seq   int
	event model.MealEvent
}

type participationRecord struct {
	seq int
	p   model.Participation
}

// Store holds all rows. Use Events and Participations to get the
// repository views and WithTx to group writes.
type Store struct {
	mu     sync.Mutex
	seq    int
	events map[string]eventRecord
	parts  map[string]participationRecord

	txSem chan struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		events: make(map[string]eventRecord),
		parts:  make(map[string]participationRecord),
		txSem:  make(chan struct{}, 1),
	}
}

// WithTx runs fn with exclusive access to the store. When fn returns an
// error every write it made is undone. Nested calls join the outer one.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	select {
	case s.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.txSem }()

	events, parts, seq := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, struct{}{})); err != nil {
		s.restore(events, parts, seq)
		return err
	}
	return nil
}

// Events returns the event repository view.
func (s *Store) Events() *EventRepository {
	return &EventRepository{s: s}
}

// Participations returns the participation repository view.
func (s *Store) Participations() *ParticipationRepository {
	return &ParticipationRepository{s: s}
}

func (s *Store) snapshot() (map[string]eventRecord, map[string]participationRecord, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make(map[string]eventRecord, len(s.events))
	for k, v := range s.events {
		v.event = cloneEvent(v.event)
		events[k] = v
	}
	parts := make(map[string]participationRecord, len(s.parts))
	for k, v := range s.parts {
		parts[k] = v
	}
	return events, parts, s.seq
}

func (s *Store) restore(events map[string]eventRecord, parts map[string]participationRecord, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events, s.parts, s.seq = events, parts, seq
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

// EventRepository mirrors repository.EventRepository.
type EventRepository struct {
	s *Store
}

func (r *EventRepository) Create(_ context.Context, e *model.MealEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.events[e.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.events[e.ID] = eventRecord{seq: r.s.nextSeq(), event: cloneEvent(*e)}
	return nil
}

func (r *EventRepository) GetByID(_ context.Context, id string) (*model.MealEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e := cloneEvent(rec.event)
	return &e, nil
}

// GetForUpdate is GetByID; the transaction already has the store to itself.
func (r *EventRepository) GetForUpdate(ctx context.Context, id string) (*model.MealEvent, error) {
	return r.GetByID(ctx, id)
}

func (r *EventRepository) List(_ context.Context, offset, limit int) ([]model.MealEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.sortedEvents(func(model.MealEvent) bool { return true })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (r *EventRepository) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.events), nil
}

func (r *EventRepository) ListByHost(_ context.Context, hostUserID string) ([]model.MealEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedEvents(func(e model.MealEvent) bool { return e.HostUserID == hostUserID }), nil
}

func (r *EventRepository) UpdateAggregate(_ context.Context, id string, confirmed int, status model.EventStatus, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.event.ConfirmedCount = confirmed
	rec.event.Status = status
	rec.event.UpdatedAt = at
	r.s.events[id] = rec
	return nil
}

func (r *EventRepository) Update(_ context.Context, e *model.MealEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.events[e.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := cloneEvent(*e)
	updated.HostUserID = rec.event.HostUserID
	updated.CreatedAt = rec.event.CreatedAt
	rec.event = updated
	r.s.events[e.ID] = rec
	return nil
}

func (r *EventRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.events[id]; !ok {
		return repository.ErrNotFound
	}
	for _, rec := range r.s.parts {
		if rec.p.EventID == id {
			return repository.ErrReferenced
		}
	}
	delete(r.s.events, id)
	return nil
}

func (s *Store) sortedEvents(keep func(model.MealEvent) bool) []model.MealEvent {
	recs := make([]eventRecord, 0, len(s.events))
	for _, rec := range s.events {
		if keep(rec.event) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.event.CreatedAt.Equal(b.event.CreatedAt) {
			return a.event.CreatedAt.After(b.event.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]model.MealEvent, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneEvent(rec.event))
	}
	return out
}

// ParticipationRepository mirrors repository.ParticipationRepository.
type ParticipationRepository struct {
	s *Store
}

func (r *ParticipationRepository) GetForUpdate(_ context.Context, eventID, userID string) (*model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.parts {
		if rec.p.EventID == eventID && rec.p.UserID == userID {
			p := rec.p
			return &p, nil
		}
	}
	return nil, nil
}

func (r *ParticipationRepository) GetByID(_ context.Context, id string) (*model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.parts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := rec.p
	return &p, nil
}

func (r *ParticipationRepository) Insert(_ context.Context, p *model.Participation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.events[p.EventID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := r.s.parts[p.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, rec := range r.s.parts {
		if rec.p.EventID == p.EventID && rec.p.UserID == p.UserID {
			return repository.ErrDuplicate
		}
	}
	r.s.parts[p.ID] = participationRecord{seq: r.s.nextSeq(), p: *p}
	return nil
}

func (r *ParticipationRepository) Update(_ context.Context, p *model.Participation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.parts[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.p.Status = p.Status
	rec.p.SeatCount = p.SeatCount
	rec.p.Contact = p.Contact
	rec.p.UpdatedAt = p.UpdatedAt
	r.s.parts[p.ID] = rec
	return nil
}

func (r *ParticipationRepository) SumConfirmed(_ context.Context, eventID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	total := 0
	for _, rec := range r.s.parts {
		if rec.p.EventID == eventID && rec.p.IsConfirmed() {
			total += rec.p.SeatCount
		}
	}
	return total, nil
}

func (r *ParticipationRepository) CountByEvent(_ context.Context, eventID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, rec := range r.s.parts {
		if rec.p.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (r *ParticipationRepository) ListByEvent(_ context.Context, eventID string) ([]model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedParts(func(p model.Participation) bool { return p.EventID == eventID }, false), nil
}

func (r *ParticipationRepository) ListConfirmed(_ context.Context, eventID string) ([]model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedParts(func(p model.Participation) bool {
		return p.EventID == eventID && p.IsConfirmed()
	}, false), nil
}

func (r *ParticipationRepository) CancelConfirmed(_ context.Context, eventID string, at time.Time) ([]model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	changed := r.s.sortedParts(func(p model.Participation) bool {
		return p.EventID == eventID && p.IsConfirmed()
	}, false)
	for i := range changed {
		changed[i].Status = model.ParticipationCancelled
		changed[i].UpdatedAt = at
		rec := r.s.parts[changed[i].ID]
		rec.p = changed[i]
		r.s.parts[changed[i].ID] = rec
	}
	return changed, nil
}

func (r *ParticipationRepository) ListConfirmedByUser(_ context.Context, userID string) ([]model.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedParts(func(p model.Participation) bool {
		return p.UserID == userID && p.IsConfirmed()
	}, true), nil
}

func (s *Store) sortedParts(keep func(model.Participation) bool, newestFirst bool) []model.Participation {
	recs := make([]participationRecord, 0)
	for _, rec := range s.parts {
		if keep(rec.p) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.p.CreatedAt.Equal(b.p.CreatedAt) {
			if newestFirst {
				return a.p.CreatedAt.After(b.p.CreatedAt)
			}
			return a.p.CreatedAt.Before(b.p.CreatedAt)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	out := make([]model.Participation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.p)
	}
	return out
}

func cloneEvent(e model.MealEvent) model.MealEvent {
	if e.SignupDeadline != nil {
		d := *e.SignupDeadline
		e.SignupDeadline = &d
	}
	if e.Location != nil {
		loc := *e.Location
		e.Location = &loc
	}
	return e
}
