package domain

import "time"

// User owns cards and at most one current learning session. The session
// pointer is what makes a session "current"; superseded sessions keep
// their review facts but are never pointed at again.
type User struct {
	ID               int64
	Username         string
	CurrentSessionID *int64
	CreatedAt        time.Time
}

// ScheduleState is the spaced-repetition state of a single card. Bucket
// runs from 1 (new or recently failed) to MaxBucket (mastered). NextDate
// is nil exactly when the card is mastered.
type ScheduleState struct {
	ID       int64
	Bucket   int
	NextDate *time.Time
}

// Card is one front/back flashcard. A card belongs to one user, owns
// exactly one ScheduleState, and may sit in a deck, carry tags, or both.
type Card struct {
	ID          int64
	UserID      int64
	DeckID      *int64
	Front       string
	Back        string
	ContentHash string
	Schedule    ScheduleState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Deck groups cards under a single named collection.
type Deck struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// Tag is a free-form label; cards and tags are many-to-many.
type Tag struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// ReviewFact is one scheduled review of one card within one session.
// SeqNo fixes the iteration order at build time. Outcome is nil until
// the learner answers; CompletedAt is set together with Outcome and
// never cleared.
type ReviewFact struct {
	ID          int64
	UserID      int64
	SessionID   int64
	CardID      int64
	SeqNo       int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Outcome     *bool
}

// Answered reports whether an outcome has been recorded for the fact.
func (f *ReviewFact) Answered() bool {
	return f.CompletedAt != nil
}

// Source is a registered origin of importable cards: a local directory
// or a git repository of markdown files.
type Source struct {
	ID          int64
	UserID      int64
	Path        string
	Type        string // "local" or "git"
	LastScanned *time.Time
}

// ScopeKind selects which card grouping a Scope filters by.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeTags
	ScopeDeck
)

// Scope narrows a user's card pool to a set of tags or a single deck.
// The zero value means no filtering.
type Scope struct {
	Kind   ScopeKind
	TagIDs []int64
	DeckID int64
}

// AllCards returns the unfiltered scope.
func AllCards() Scope { return Scope{Kind: ScopeAll} }

// ByTags filters to cards carrying any of the given tags.
func ByTags(tagIDs ...int64) Scope { return Scope{Kind: ScopeTags, TagIDs: tagIDs} }

// ByDeck filters to cards in one deck.
func ByDeck(deckID int64) Scope { return Scope{Kind: ScopeDeck, DeckID: deckID} }
