package storage

const schema = `
-- Users own cards and point at their current learning session, if any.
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    current_session_id INTEGER,
    created_at DATETIME NOT NULL
);

-- One spaced-repetition state per card stored as its own row. next_date
-- is NULL exactly when the bucket has reached the mastered level.
CREATE TABLE IF NOT EXISTS schedule_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bucket INTEGER NOT NULL CHECK (bucket BETWEEN 1 AND 6),
    next_date DATETIME
);

CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    deck_id INTEGER,
    schedule_id INTEGER NOT NULL UNIQUE,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,

    FOREIGN KEY(user_id) REFERENCES users(id),
    FOREIGN KEY(deck_id) REFERENCES decks(id),
    FOREIGN KEY(schedule_id) REFERENCES schedule_states(id)
);

CREATE INDEX IF NOT EXISTS idx_cards_user_updated ON cards(user_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_cards_user_hash ON cards(user_id, content_hash);

CREATE TABLE IF NOT EXISTS taggings (
    tag_id INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    PRIMARY KEY (tag_id, card_id),

    FOREIGN KEY(tag_id) REFERENCES tags(id),
    FOREIGN KEY(card_id) REFERENCES cards(id)
);

-- One row per scheduled review of one card within one session. Session
-- ids are a per-user sequence, so facts are always addressed by
-- (user_id, session_id).
CREATE TABLE IF NOT EXISTS review_facts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    session_id INTEGER NOT NULL,
    card_id INTEGER NOT NULL,
    seq_no INTEGER NOT NULL,
    created_at DATETIME NOT NULL,
    started_at DATETIME,
    completed_at DATETIME,
    outcome INTEGER,

    FOREIGN KEY(user_id) REFERENCES users(id),
    FOREIGN KEY(card_id) REFERENCES cards(id)
);

CREATE INDEX IF NOT EXISTS idx_facts_user_session ON review_facts(user_id, session_id);
CREATE INDEX IF NOT EXISTS idx_facts_user_session_completed ON review_facts(user_id, session_id, completed_at);

-- Registered card sources, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME,
    UNIQUE (user_id, path),

    FOREIGN KEY(user_id) REFERENCES users(id)
);
`
