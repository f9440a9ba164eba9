package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/leitnerbox/internal/domain"
	"github.com/conorfennell/leitnerbox/internal/importer"
	"github.com/conorfennell/leitnerbox/internal/learning"
	"github.com/conorfennell/leitnerbox/internal/schedule"
	"github.com/conorfennell/leitnerbox/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	learner := learning.NewService(db, learning.Options{
		SessionTTL: time.Hour,
	})
	return NewServer(db, learner, importer.New(db, t.TempDir())), db
}

func insertDueCard(t *testing.T, db *storage.DB, userID int64, front string) *domain.Card {
	t.Helper()
	due := schedule.DateOnly(time.Now().UTC())
	card := &domain.Card{
		UserID:   userID,
		Front:    front,
		Back:     front + " back",
		Schedule: domain.ScheduleState{Bucket: 1, NextDate: &due},
	}
	if err := db.InsertCard(card); err != nil {
		t.Fatalf("failed to insert card: %v", err)
	}
	return card
}

func TestParseIDListToleratesLeadingEmptyToken(t *testing.T) {
	testCases := []struct {
		input    string
		expected []int64
		wantErr  bool
	}{
		{input: ",1", expected: []int64{1}},
		{input: ",1,2,3", expected: []int64{1, 2, 3}},
		{input: "4,5", expected: []int64{4, 5}},
		{input: "", expected: nil},
		{input: ",", expected: nil},
		{input: ",x", wantErr: true},
	}

	for _, tc := range testCases {
		got, err := parseIDList(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseIDList(%q): expected error", tc.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseIDList(%q): unexpected error %v", tc.input, err)
			continue
		}
		if len(got) != len(tc.expected) {
			t.Errorf("parseIDList(%q): expected %v, got %v", tc.input, tc.expected, got)
			continue
		}
		for i := range got {
			if got[i] != tc.expected[i] {
				t.Errorf("parseIDList(%q): expected %v, got %v", tc.input, tc.expected, got)
				break
			}
		}
	}
}

func TestSummaryShowsDueCount(t *testing.T) {
	srv, db := newTestServer(t)
	user, _ := db.EnsureUser("alice")
	insertDueCard(t, db, user.ID, "front one")
	insertDueCard(t, db, user.ID, "front two")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/learn/summary?user=alice", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ">2<") {
		t.Errorf("expected due count of 2 in page, got: %s", rec.Body.String())
	}
}

func startSession(t *testing.T, srv *Server, username string, cardIDs ...int64) {
	t.Helper()
	selected := ""
	for _, id := range cardIDs {
		selected += fmt.Sprintf(",%d", id)
	}
	form := url.Values{"user": {username}, "cardsSelected": {selected}}
	req := httptest.NewRequest(http.MethodPost, "/learn/start", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect from start, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartAndAnswerFlow(t *testing.T) {
	srv, db := newTestServer(t)
	user, _ := db.EnsureUser("alice")
	card := insertDueCard(t, db, user.ID, "What is Go?")

	startSession(t, srv, "alice", card.ID)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/learn/current?user=alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from current, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "What is Go?") {
		t.Errorf("expected card front in page, got: %s", rec.Body.String())
	}

	reloaded, _ := db.FindUser(user.ID)
	facts, err := db.SessionFacts(user.ID, *reloaded.CurrentSessionID)
	if err != nil || len(facts) != 1 {
		t.Fatalf("expected one session fact, got %v (err %v)", facts, err)
	}

	rec = httptest.NewRecorder()
	target := fmt.Sprintf("/learn/fact?lsf_id=%d&is_ok=1", facts[0].ID)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from answer, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode answer response: %v", err)
	}
	if payload["outcome"] != true {
		t.Errorf("expected pass outcome in response, got %v", payload["outcome"])
	}

	updated, _ := db.FindCard(card.ID)
	if updated.Schedule.Bucket != 2 {
		t.Errorf("expected bucket 2 after pass, got %d", updated.Schedule.Bucket)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/learn/current?user=alice", nil))
	if !strings.Contains(rec.Body.String(), "Session complete") {
		t.Errorf("expected completion page, got: %s", rec.Body.String())
	}
}

func TestAnswerTwiceConflicts(t *testing.T) {
	srv, db := newTestServer(t)
	user, _ := db.EnsureUser("alice")
	card := insertDueCard(t, db, user.ID, "front")

	startSession(t, srv, "alice", card.ID)
	reloaded, _ := db.FindUser(user.ID)
	facts, _ := db.SessionFacts(user.ID, *reloaded.CurrentSessionID)

	target := fmt.Sprintf("/learn/fact?lsf_id=%d&is_ok=0", facts[0].ID)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from first answer, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, target, nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 from second answer, got %d", rec.Code)
	}
}

func TestAnswerUnknownFactIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/learn/fact?lsf_id=999&is_ok=1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSourcesRoundTrip(t *testing.T) {
	srv, db := newTestServer(t)

	form := url.Values{"user": {"alice"}, "path": {"/tmp/cards"}}
	req := httptest.NewRequest(http.MethodPost, "/sources", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect from source add, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sources?user=alice", nil))
	if !strings.Contains(rec.Body.String(), "/tmp/cards") {
		t.Errorf("expected source in page, got: %s", rec.Body.String())
	}

	user, _ := db.FindUserByName("alice")
	sources, _ := db.GetSources(user.ID)
	if len(sources) != 1 || sources[0].Type != "local" {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	rec = httptest.NewRecorder()
	target := fmt.Sprintf("/sources/%d", sources[0].ID)
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, target, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 from delete, got %d", rec.Code)
	}
}
