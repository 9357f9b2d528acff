package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jason-s-yu/sushi/internal/models"
	"github.com/jason-s-yu/sushi/internal/session"
	"github.com/jason-s-yu/sushi/internal/snapshot"
	"github.com/jason-s-yu/sushi/internal/stack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiServer(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	t.Setenv("SUSHI_API_URL", srv.URL)
	t.Setenv("SUSHI_TOKEN", "tok")
	t.Setenv("SUSHI_LOG_LEVEL", "error")
}

func TestRunList(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		w.Write([]byte(`{"success":true,"sessions":[
			{"session_id":1,"session_name":"lunch","current_player_count":2,"max_player_count":4},
			{"session_id":"2","session_name":"dinner","current_player_count":"5","max_player_count":5}]}`))
	})

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"list"}, nil, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "lunch")
	assert.Contains(t, out.String(), "2/4")
	assert.Contains(t, out.String(), "5/5 (full)")
}

func TestRunCreate(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lunch", body["sessionName"])
		assert.EqualValues(t, 45, body["moveDuration"])
		assert.EqualValues(t, 3, body["playerCount"])
		w.Write([]byte(`{"success":true,"session_id":12}`))
	})

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"create", "-name", "lunch", "-duration", "45", "-players", "3"}, nil, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Created session 12")
}

func TestRunCreateNeedsName(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"create"}, nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "-name is required")
}

func TestRunAuthFailureExitCode(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"list"}, nil, &out, &errOut)
	assert.Equal(t, exitAuth, code)
	assert.Contains(t, errOut.String(), "Log in again")
}

func TestRunUsage(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), nil, nil, &out, &errOut))
	assert.Equal(t, 1, run(context.Background(), []string{"dance"}, nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")
}

func TestRunPlayValidatesID(t *testing.T) {
	apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run(context.Background(), []string{"play", "abc"}, strings.NewReader(""), &out, &errOut))
	assert.Contains(t, errOut.String(), "invalid session id")
}

func sampleView() session.View {
	return session.View{
		SessionID:    3,
		State:        session.Ongoing,
		Session:      models.Session{Name: "lunch"},
		Participants: []models.Participant{{ID: 1, Username: "ann"}, {ID: 2, Username: "bo"}},
		Round:        2,
		Remaining:    14,
		Connected:    true,
		Hand: []snapshot.HandStack{
			{CardID: 11, Cards: stack.Display{{Type: "Tempura"}}},
			{CardID: 12, Cards: stack.Display{{Type: "Maki Roll", Points: 2}}},
		},
		Selected:  12,
		CanSubmit: true,
		Table: []snapshot.Seat{{PlayerID: 1, Username: "ann", Stacks: []stack.Display{
			{{Type: "Wasabi"}, {Type: "Squid Nigiri"}},
			{},
		}}},
		Scores: models.ScoreSheet{{PlayerID: 1, Username: "ann", Score: 9}},
		Banner: "scores failed: network failure (retry available)",
	}
}

func TestRender(t *testing.T) {
	var out bytes.Buffer
	render(&out, sampleView())
	s := out.String()

	assert.Contains(t, s, `Session 3 "lunch" | ongoing | round 2 | 14s left`)
	assert.Contains(t, s, "Players: ann, bo")
	assert.Contains(t, s, "* [12] Maki Roll 2")
	assert.Contains(t, s, "  [11] Tempura")
	assert.Contains(t, s, "ann: Wasabi > Squid Nigiri | (unreadable)")
	assert.Contains(t, s, "Scores: ann 9")
	assert.Contains(t, s, "type 'submit'")
	assert.Contains(t, s, "! scores failed")
}

func TestDigestIgnoresClock(t *testing.T) {
	a := sampleView()
	b := sampleView()
	b.Remaining = 3
	assert.Equal(t, digest(a), digest(b))

	b.Selected = 11
	assert.NotEqual(t, digest(a), digest(b))
}

func TestOfferLatestKeepsNewest(t *testing.T) {
	ch := make(chan session.View, 1)
	offerLatest(ch, session.View{Round: 1})
	offerLatest(ch, session.View{Round: 2})
	assert.Equal(t, 2, (<-ch).Round)
}

func TestReadLinesStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	lines := readLines(ctx, strings.NewReader("select 11\nsubmit\n"))
	assert.Equal(t, "select 11", <-lines)

	// The reader is parked on "submit" with nobody receiving.
	cancel()
	time.Sleep(20 * time.Millisecond)
	_, ok := <-lines
	assert.False(t, ok)
}

func TestReadLinesClosesAtEOF(t *testing.T) {
	lines := readLines(context.Background(), strings.NewReader("q\n"))
	assert.Equal(t, "q", <-lines)
	_, ok := <-lines
	assert.False(t, ok)
}

func TestArgID(t *testing.T) {
	id, err := argID([]string{"select", "42"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = argID([]string{"select"})
	assert.Error(t, err)
	_, err = argID([]string{"open", "x"})
	assert.Error(t, err)
}
