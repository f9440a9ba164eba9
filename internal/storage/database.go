package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
	"github.com/conorfennell/leitnerbox/internal/schedule"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
// All timestamps are stored in UTC.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureUser returns the user with the given name, creating it if needed.
func (db *DB) EnsureUser(username string) (*domain.User, error) {
	user, err := db.FindUserByName(username)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO users (username, created_at)
		VALUES (?, ?)
	`, username, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user %s: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for user %s: %w", username, err)
	}
	return &domain.User{ID: id, Username: username, CreatedAt: now}, nil
}

// FindUserByName retrieves a user by username, or nil if none exists.
func (db *DB) FindUserByName(username string) (*domain.User, error) {
	row := db.conn.QueryRow(`
		SELECT id, username, current_session_id, created_at
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

// FindUser retrieves a user by id, or nil if none exists.
func (db *DB) FindUser(id int64) (*domain.User, error) {
	row := db.conn.QueryRow(`
		SELECT id, username, current_session_id, created_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var session sql.NullInt64
	err := row.Scan(&u.ID, &u.Username, &session, &u.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user row: %w", err)
	}
	if session.Valid {
		u.CurrentSessionID = &session.Int64
	}
	return &u, nil
}

// InsertDeck creates a deck for a user and returns it.
func (db *DB) InsertDeck(userID int64, name, description string) (*domain.Deck, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO decks (user_id, name, description, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, name, description, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert deck %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for deck %s: %w", name, err)
	}
	return &domain.Deck{ID: id, UserID: userID, Name: name, Description: description, CreatedAt: now}, nil
}

// InsertTag creates a tag for a user and returns it.
func (db *DB) InsertTag(userID int64, name, description string) (*domain.Tag, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(`
		INSERT INTO tags (user_id, name, description, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, name, description, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tag %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID for tag %s: %w", name, err)
	}
	return &domain.Tag{ID: id, UserID: userID, Name: name, Description: description, CreatedAt: now}, nil
}

// TagCard attaches a tag to a card. Re-tagging is a no-op.
func (db *DB) TagCard(tagID, cardID int64) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO taggings (tag_id, card_id)
		VALUES (?, ?)
	`, tagID, cardID)
	if err != nil {
		return fmt.Errorf("failed to tag card %d with tag %d: %w", cardID, tagID, err)
	}
	return nil
}

// InsertCard creates the card together with its schedule state in one
// transaction. The card's Schedule must carry the initial bucket and due
// date; ids and timestamps are filled in on return.
func (db *DB) InsertCard(card *domain.Card) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO schedule_states (bucket, next_date)
		VALUES (?, ?)
	`, card.Schedule.Bucket, utcPtr(card.Schedule.NextDate))
	if err != nil {
		return fmt.Errorf("failed to insert schedule state: %w", err)
	}
	scheduleID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get schedule state ID: %w", err)
	}

	now := time.Now().UTC()
	res, err = tx.Exec(`
		INSERT INTO cards (user_id, deck_id, schedule_id, front, back, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, card.UserID, card.DeckID, scheduleID, card.Front, card.Back, card.ContentHash, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert card: %w", err)
	}
	cardID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get card ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit card insert: %w", err)
	}

	card.ID = cardID
	card.Schedule.ID = scheduleID
	card.CreatedAt = now
	card.UpdatedAt = now
	return nil
}

const cardColumns = `
	c.id, c.user_id, c.deck_id, c.front, c.back, c.content_hash, c.created_at, c.updated_at,
	s.id, s.bucket, s.next_date
`

func scanCard(scan func(dest ...any) error) (*domain.Card, error) {
	var c domain.Card
	var deckID sql.NullInt64
	var nextDate sql.NullTime
	err := scan(
		&c.ID, &c.UserID, &deckID, &c.Front, &c.Back, &c.ContentHash, &c.CreatedAt, &c.UpdatedAt,
		&c.Schedule.ID, &c.Schedule.Bucket, &nextDate,
	)
	if err != nil {
		return nil, err
	}
	if deckID.Valid {
		c.DeckID = &deckID.Int64
	}
	if nextDate.Valid {
		t := nextDate.Time
		c.Schedule.NextDate = &t
	}
	return &c, nil
}

// FindCard retrieves a card and its schedule state, or nil if none exists.
func (db *DB) FindCard(id int64) (*domain.Card, error) {
	row := db.conn.QueryRow(`
		SELECT `+cardColumns+`
		FROM cards c JOIN schedule_states s ON s.id = c.schedule_id
		WHERE c.id = ?
	`, id)
	card, err := scanCard(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return card, nil
}

// FindCardByContentHash looks up a user's card by its normalized content
// hash, or nil if none exists. Used by the importer to skip duplicates.
func (db *DB) FindCardByContentHash(userID int64, hash string) (*domain.Card, error) {
	row := db.conn.QueryRow(`
		SELECT `+cardColumns+`
		FROM cards c JOIN schedule_states s ON s.id = c.schedule_id
		WHERE c.user_id = ? AND c.content_hash = ?
	`, userID, hash)
	card, err := scanCard(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return card, nil
}

// UpdateCard rewrites the card's content and bumps updated_at, which is
// what marks the user's pool as changed for session invalidation.
func (db *DB) UpdateCard(card *domain.Card) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		UPDATE cards
		SET deck_id = ?, front = ?, back = ?, content_hash = ?, updated_at = ?
		WHERE id = ?
	`, card.DeckID, card.Front, card.Back, card.ContentHash, now, card.ID)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", card.ID, err)
	}
	card.UpdatedAt = now
	return nil
}

// UpdateSchedule overwrites a card's schedule state. Used for manual
// edits; review outcomes go through RecordReview instead.
func (db *DB) UpdateSchedule(st *domain.ScheduleState) error {
	_, err := db.conn.Exec(`
		UPDATE schedule_states
		SET bucket = ?, next_date = ?
		WHERE id = ?
	`, st.Bucket, utcPtr(st.NextDate), st.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule state %d: %w", st.ID, err)
	}
	return nil
}

// DeleteCard removes a card, its schedule state, its taggings and its
// review facts in one transaction.
func (db *DB) DeleteCard(id int64) error {
	card, err := db.FindCard(id)
	if err != nil {
		return err
	}
	if card == nil {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []struct {
		query string
		arg   int64
	}{
		{"DELETE FROM taggings WHERE card_id = ?", id},
		{"DELETE FROM review_facts WHERE card_id = ?", id},
		{"DELETE FROM cards WHERE id = ?", id},
		{"DELETE FROM schedule_states WHERE id = ?", card.Schedule.ID},
	} {
		if _, err := tx.Exec(stmt.query, stmt.arg); err != nil {
			return fmt.Errorf("failed to delete card %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit card delete: %w", err)
	}
	return nil
}

// DueCards returns the user's unmastered cards due on or before asOf,
// narrowed by the scope filter. Order is unspecified; session building
// decides ordering.
func (db *DB) DueCards(userID int64, scope domain.Scope, asOf time.Time) ([]domain.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards c JOIN schedule_states s ON s.id = c.schedule_id
		WHERE c.user_id = ? AND s.bucket < ? AND s.next_date IS NOT NULL AND s.next_date <= ?
	`
	args := []any{userID, schedule.MaxBucket, asOf.UTC()}

	switch scope.Kind {
	case domain.ScopeTags:
		if len(scope.TagIDs) == 0 {
			return nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(scope.TagIDs)), ",")
		query += ` AND c.id IN (SELECT card_id FROM taggings WHERE tag_id IN (` + placeholders + `))`
		for _, tagID := range scope.TagIDs {
			args = append(args, tagID)
		}
	case domain.ScopeDeck:
		query += ` AND c.deck_id = ?`
		args = append(args, scope.DeckID)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query due cards for user %d: %w", userID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due card row: %w", err)
		}
		cards = append(cards, *card)
	}
	return cards, rows.Err()
}

// LatestCardTouch returns the most recent updated_at across the user's
// cards. The second return value is false when the user has no cards.
func (db *DB) LatestCardTouch(userID int64) (time.Time, bool, error) {
	var touched time.Time
	row := db.conn.QueryRow(`
		SELECT updated_at FROM cards
		WHERE user_id = ?
		ORDER BY updated_at DESC LIMIT 1
	`, userID)
	err := row.Scan(&touched)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to query latest card touch for user %d: %w", userID, err)
	}
	return touched, true, nil
}

// MaxSessionID returns the highest session id recorded for the user, or
// -1 when the user has never had a session fact.
func (db *DB) MaxSessionID(userID int64) (int64, error) {
	var maxID int64
	row := db.conn.QueryRow(`
		SELECT COALESCE(MAX(session_id), -1) FROM review_facts
		WHERE user_id = ?
	`, userID)
	if err := row.Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to query max session id for user %d: %w", userID, err)
	}
	return maxID, nil
}

// CommitSession persists the facts of a freshly built session and points
// the user at it, as one atomic unit.
func (db *DB) CommitSession(userID, sessionID int64, facts []domain.ReviewFact) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range facts {
		f := &facts[i]
		res, err := tx.Exec(`
			INSERT INTO review_facts (user_id, session_id, card_id, seq_no, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, f.UserID, f.SessionID, f.CardID, f.SeqNo, f.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert review fact %d of session %d: %w", f.SeqNo, sessionID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get review fact ID: %w", err)
		}
		f.ID = id
	}

	if _, err := tx.Exec(`
		UPDATE users SET current_session_id = ? WHERE id = ?
	`, sessionID, userID); err != nil {
		return fmt.Errorf("failed to advance session pointer for user %d: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %d: %w", sessionID, err)
	}
	return nil
}

const factColumns = `
	id, user_id, session_id, card_id, seq_no, created_at, started_at, completed_at, outcome
`

func scanFact(scan func(dest ...any) error) (*domain.ReviewFact, error) {
	var f domain.ReviewFact
	var started, completed sql.NullTime
	var outcome sql.NullInt64
	err := scan(
		&f.ID, &f.UserID, &f.SessionID, &f.CardID, &f.SeqNo, &f.CreatedAt,
		&started, &completed, &outcome,
	)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		f.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		f.CompletedAt = &t
	}
	if outcome.Valid {
		passed := outcome.Int64 != 0
		f.Outcome = &passed
	}
	return &f, nil
}

// SessionFacts returns all facts of one of the user's sessions, ordered
// by sequence number.
func (db *DB) SessionFacts(userID, sessionID int64) ([]domain.ReviewFact, error) {
	rows, err := db.conn.Query(`
		SELECT `+factColumns+`
		FROM review_facts
		WHERE user_id = ? AND session_id = ?
		ORDER BY seq_no
	`, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var facts []domain.ReviewFact
	for rows.Next() {
		fact, err := scanFact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review fact row: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

// FindFact retrieves one review fact by id, or nil if none exists.
func (db *DB) FindFact(id int64) (*domain.ReviewFact, error) {
	row := db.conn.QueryRow(`
		SELECT `+factColumns+`
		FROM review_facts WHERE id = ?
	`, id)
	fact, err := scanFact(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find review fact %d: %w", id, err)
	}
	return fact, nil
}

// MarkFactStarted stamps started_at the first time the card is shown.
// Later displays of the same fact keep the original timestamp.
func (db *DB) MarkFactStarted(id int64, at time.Time) error {
	_, err := db.conn.Exec(`
		UPDATE review_facts SET started_at = ?
		WHERE id = ? AND started_at IS NULL
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark review fact %d started: %w", id, err)
	}
	return nil
}

// RecordReview writes a review outcome and the card's updated schedule
// state in one transaction. The fact must not have been completed yet;
// the WHERE guard makes a second write fail rather than overwrite.
func (db *DB) RecordReview(fact *domain.ReviewFact, st *domain.ScheduleState) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE schedule_states SET bucket = ?, next_date = ?
		WHERE id = ?
	`, st.Bucket, utcPtr(st.NextDate), st.ID); err != nil {
		return fmt.Errorf("failed to update schedule state %d: %w", st.ID, err)
	}

	var outcome any
	if fact.Outcome != nil {
		outcome = boolToInt(*fact.Outcome)
	}
	res, err := tx.Exec(`
		UPDATE review_facts SET outcome = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL
	`, outcome, utcPtr(fact.CompletedAt), fact.ID)
	if err != nil {
		return fmt.Errorf("failed to update review fact %d: %w", fact.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check review fact update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("review fact %d is already completed", fact.ID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review of fact %d: %w", fact.ID, err)
	}
	return nil
}

// InsertSource registers a card source for a user and returns its ID.
func (db *DB) InsertSource(userID int64, path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (user_id, path, type)
		VALUES (?, ?, ?)
	`, userID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// GetSources retrieves all of a user's registered sources.
func (db *DB) GetSources(userID int64) ([]domain.Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources for user %d: %w", userID, err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var scanned sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.Path, &s.Type, &scanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		if scanned.Valid {
			t := scanned.Time
			s.LastScanned = &t
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// DeleteSource removes a registered source. Cards imported from it stay.
func (db *DB) DeleteSource(id int64) error {
	_, err := db.conn.Exec(`DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	return nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources SET last_scanned = ?
		WHERE id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
