// Package learning drives review sessions: it selects due cards, builds
// ordered sessions of review facts, resumes or replaces the session a
// user is in the middle of, and records pass/fail outcomes against the
// cards' schedules. All schedule mutation flows through RecordOutcome.
package learning

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
	"github.com/conorfennell/leitnerbox/internal/schedule"
	"github.com/conorfennell/leitnerbox/internal/storage"
)

var (
	// ErrNotFound means a referenced card, fact or session does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means an operation was called against a fact or
	// session that cannot accept it, such as answering a fact twice.
	ErrInvalidState = errors.New("invalid state")
	// ErrStaleBuild means Commit was called on a builder that never built.
	ErrStaleBuild = errors.New("session was not built")
)

// State classifies a user's current session. It is derived from stored
// facts on every call, never stored itself.
type State int

const (
	// StateNoSession: no current session pointer, or the session is empty.
	StateNoSession State = iota
	// StateActive: the session still has unanswered facts and is fresh.
	StateActive
	// StateComplete: the last fact of the session has been answered.
	StateComplete
	// StateOutdated: a card was created or edited after the session was
	// built, so the candidate pool may have changed.
	StateOutdated
	// StateExpired: the session has been idle longer than the TTL.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateOutdated:
		return "outdated"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Service.
type Options struct {
	// SessionTTL is how long a session may sit idle before it is
	// replaced instead of resumed.
	SessionTTL time.Duration
	// MaxCards caps how many due cards go into an auto-built session.
	MaxCards int
	// SecondsPerCard feeds the estimated-minutes stat.
	SecondsPerCard int
	// Now overrides the clock, for tests. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Service is the entry point for everything session-related.
type Service struct {
	store *storage.DB
	opts  Options
	now   func() time.Time
}

// NewService wires a Service over the given store.
func NewService(store *storage.DB, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 5 * time.Minute
	}
	if opts.MaxCards <= 0 {
		opts.MaxCards = 20
	}
	if opts.SecondsPerCard <= 0 {
		opts.SecondsPerCard = 30
	}
	return &Service{store: store, opts: opts, now: now}
}

// Stats summarizes a session for display before or during learning.
type Stats struct {
	Total            int
	Remaining        int
	EstimatedMinutes int
}

// Session is a loaded or freshly built review session.
type Session struct {
	ID        int64
	State     State
	Committed bool
	Facts     []domain.ReviewFact
	Stats     Stats
}

// DuePool returns the user's cards eligible for review under the scope
// filter, as of the end of the reference day. No ordering is guaranteed.
func (s *Service) DuePool(user *domain.User, scope domain.Scope, asOf time.Time) ([]domain.Card, error) {
	return s.store.DueCards(user.ID, scope, schedule.EndOfDay(asOf.UTC()))
}

// Resolve classifies the user's current session. The checks run in a
// fixed order and the first match wins: no session, complete, outdated,
// expired, active.
func (s *Service) Resolve(user *domain.User) (State, error) {
	if user.CurrentSessionID == nil {
		return StateNoSession, nil
	}
	facts, err := s.store.SessionFacts(user.ID, *user.CurrentSessionID)
	if err != nil {
		return StateNoSession, err
	}
	return s.classify(user, facts)
}

func (s *Service) classify(user *domain.User, facts []domain.ReviewFact) (State, error) {
	if len(facts) == 0 {
		return StateNoSession, nil
	}

	// Facts arrive ordered by sequence number; the last one answered
	// means the whole session is done.
	if facts[len(facts)-1].Answered() {
		return StateComplete, nil
	}

	touched, ok, err := s.store.LatestCardTouch(user.ID)
	if err != nil {
		return StateNoSession, err
	}
	if ok && touched.After(facts[0].CreatedAt) {
		return StateOutdated, nil
	}

	if s.now().Sub(lastActivity(facts)) > s.opts.SessionTTL {
		return StateExpired, nil
	}
	return StateActive, nil
}

// lastActivity is the latest completed_at across the facts, or the
// session's creation time if nothing has been answered yet.
func lastActivity(facts []domain.ReviewFact) time.Time {
	last := facts[0].CreatedAt
	for _, f := range facts {
		if f.CompletedAt != nil && f.CompletedAt.After(last) {
			last = *f.CompletedAt
		}
	}
	return last
}

// LoadOrCreate resumes the user's session when it is still active, and
// otherwise builds a replacement from the current due pool. Unanswered
// facts of a replaced session are deliberately not carried over; the
// rebuild re-queries the pool. With writeIfNew false the built session
// is a preview only and nothing is persisted.
func (s *Service) LoadOrCreate(user *domain.User, scope domain.Scope, writeIfNew bool) (*Session, error) {
	state, err := s.Resolve(user)
	if err != nil {
		return nil, err
	}

	if state == StateActive {
		facts, err := s.store.SessionFacts(user.ID, *user.CurrentSessionID)
		if err != nil {
			return nil, err
		}
		return &Session{
			ID:        *user.CurrentSessionID,
			State:     state,
			Committed: true,
			Facts:     facts,
			Stats:     s.stats(facts),
		}, nil
	}

	cards, err := s.DuePool(user, scope, s.now())
	if err != nil {
		return nil, err
	}
	// Stable order, capped by the how-many-to-learn policy.
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	if len(cards) > s.opts.MaxCards {
		cards = cards[:s.opts.MaxCards]
	}

	builder := s.NewBuilder(user, cards)
	if err := builder.Build(); err != nil {
		return nil, err
	}
	if writeIfNew {
		if err := builder.Commit(); err != nil {
			return nil, err
		}
	}
	return builder.Session(), nil
}

// CurrentFact returns the unanswered fact with the lowest sequence
// number in the user's current session, stamping started_at the first
// time it is served. A nil fact with nil error means the session is
// complete. Calling this without a current session is a caller bug.
func (s *Service) CurrentFact(user *domain.User) (*domain.ReviewFact, error) {
	if user.CurrentSessionID == nil {
		return nil, fmt.Errorf("user %d has no current session: %w", user.ID, ErrInvalidState)
	}
	facts, err := s.store.SessionFacts(user.ID, *user.CurrentSessionID)
	if err != nil {
		return nil, err
	}
	for i := range facts {
		f := &facts[i]
		if f.Answered() {
			continue
		}
		if f.StartedAt == nil {
			now := s.now()
			if err := s.store.MarkFactStarted(f.ID, now); err != nil {
				return nil, err
			}
			f.StartedAt = &now
		}
		return f, nil
	}
	return nil, nil
}

// RecordOutcome records a pass or fail for one fact and applies the
// matching schedule transition to the fact's card, in one transaction.
// This is the only path that mutates a schedule from a review; a fact
// can be answered at most once.
func (s *Service) RecordOutcome(factID int64, passed bool, now time.Time) (*domain.ReviewFact, error) {
	fact, err := s.store.FindFact(factID)
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, fmt.Errorf("review fact %d: %w", factID, ErrNotFound)
	}
	if fact.Answered() {
		return nil, fmt.Errorf("review fact %d already answered: %w", factID, ErrInvalidState)
	}

	card, err := s.store.FindCard(fact.CardID)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, fmt.Errorf("card %d of review fact %d: %w", fact.CardID, factID, ErrNotFound)
	}

	now = now.UTC()
	if passed {
		schedule.Pass(&card.Schedule, now)
	} else {
		schedule.Fail(&card.Schedule, now)
	}
	fact.Outcome = &passed
	fact.CompletedAt = &now

	if err := s.store.RecordReview(fact, &card.Schedule); err != nil {
		return nil, err
	}
	return fact, nil
}

// CardsByID loads the given cards, in the given order, verifying they
// belong to the user. Unknown or foreign ids are ErrNotFound.
func (s *Service) CardsByID(user *domain.User, ids []int64) ([]domain.Card, error) {
	cards := make([]domain.Card, 0, len(ids))
	for _, id := range ids {
		card, err := s.store.FindCard(id)
		if err != nil {
			return nil, err
		}
		if card == nil || card.UserID != user.ID {
			return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		cards = append(cards, *card)
	}
	return cards, nil
}

func (s *Service) stats(facts []domain.ReviewFact) Stats {
	remaining := 0
	for _, f := range facts {
		if !f.Answered() {
			remaining++
		}
	}
	return Stats{
		Total:            len(facts),
		Remaining:        remaining,
		EstimatedMinutes: (remaining*s.opts.SecondsPerCard + 59) / 60,
	}
}
