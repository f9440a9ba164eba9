package learning

import (
	"fmt"

	"github.com/conorfennell/leitnerbox/internal/domain"
)

// Builder turns a prepared list of cards into a session of review
// facts. Build and Commit are split so callers can preview a session's
// stats without persisting anything.
type Builder struct {
	service   *Service
	user      *domain.User
	cards     []domain.Card
	sessionID int64
	facts     []domain.ReviewFact
	built     bool
	committed bool
}

// NewBuilder prepares a session from the cards in the given order. The
// caller decides sampling and ordering; the builder preserves both.
func (s *Service) NewBuilder(user *domain.User, cards []domain.Card) *Builder {
	return &Builder{service: s, user: user, cards: cards}
}

// Build assigns the next session id in the user's sequence and creates
// one fact per card, numbered contiguously from 0 in input order, all
// sharing a single creation timestamp.
func (b *Builder) Build() error {
	maxID, err := b.service.store.MaxSessionID(b.user.ID)
	if err != nil {
		return err
	}
	// An empty committed session leaves no fact rows behind, so the
	// pointer has to count toward the sequence too.
	if b.user.CurrentSessionID != nil && *b.user.CurrentSessionID > maxID {
		maxID = *b.user.CurrentSessionID
	}
	b.sessionID = maxID + 1

	createdAt := b.service.now()
	b.facts = make([]domain.ReviewFact, 0, len(b.cards))
	for i, card := range b.cards {
		b.facts = append(b.facts, domain.ReviewFact{
			UserID:    b.user.ID,
			SessionID: b.sessionID,
			CardID:    card.ID,
			SeqNo:     i,
			CreatedAt: createdAt,
		})
	}
	b.built = true
	return nil
}

// Commit persists the facts and points the user at the new session as
// one atomic write. Committing without a prior Build is a usage error.
func (b *Builder) Commit() error {
	if !b.built {
		return fmt.Errorf("commit for user %d: %w", b.user.ID, ErrStaleBuild)
	}
	if b.committed {
		return fmt.Errorf("session %d already committed: %w", b.sessionID, ErrInvalidState)
	}
	if err := b.service.store.CommitSession(b.user.ID, b.sessionID, b.facts); err != nil {
		return err
	}
	id := b.sessionID
	b.user.CurrentSessionID = &id
	b.committed = true
	return nil
}

// Session returns the built session, committed or not.
func (b *Builder) Session() *Session {
	state := StateNoSession
	if b.committed && len(b.facts) > 0 {
		state = StateActive
	}
	return &Session{
		ID:        b.sessionID,
		State:     state,
		Committed: b.committed,
		Facts:     b.facts,
		Stats:     b.service.stats(b.facts),
	}
}
