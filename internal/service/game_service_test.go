package service

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resilience-sim/internal/content"
	"resilience-sim/internal/engine"
	"resilience-sim/internal/llm"
)

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
	typing []TypingState
}

func (f *fakeBroadcaster) BroadcastToSession(sessionID, msgType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, msgType)
	if ts, ok := payload.(TypingState); ok {
		f.typing = append(f.typing, ts)
	}
}

func (f *fakeBroadcaster) typingFrames() []TypingState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]TypingState(nil), f.typing...)
}

func (f *fakeBroadcaster) DisconnectSession(sessionID string) {}

func (f *fakeBroadcaster) sent(msgType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == msgType {
			return true
		}
	}
	return false
}

func newGameService(t *testing.T, proxyURL string) (*GameService, *fakeBroadcaster) {
	t.Helper()
	catalog, err := content.Load()
	require.NoError(t, err)

	log := zap.NewNop()
	evaluator := NewEvaluatorService(llm.NewClient(proxyURL, 2*time.Second), 6, log)
	svc := NewGameService(catalog, evaluator, engine.Config{
		AutoAdvanceDelay:   1500 * time.Millisecond,
		ForcedVariety:      true,
		FreeformEvaluation: true,
	}, log)

	b := &fakeBroadcaster{}
	svc.SetBroadcaster(b)
	return svc, b
}

// driveToFreeform plays the badge up to the freeform prompt using only the
// service API.
func driveToFreeform(t *testing.T, svc *GameService, sessionID string) {
	t.Helper()
	for {
		view, err := svc.GetSession(sessionID)
		require.NoError(t, err)
		switch view.Status {
		case engine.StatusStepEntered:
			_, err := svc.Advance(sessionID)
			require.NoError(t, err)
		case engine.StatusAwaitingChoice:
			require.NotEmpty(t, view.Choices)
			if view.Choices[0].IsFreeform {
				return
			}
			_, err := svc.SelectChoice(sessionID, view.Choices[0].ID)
			require.NoError(t, err)
		default:
			t.Fatalf("unexpected status %s before freeform", view.Status)
		}
	}
}

func TestCreateSessionUnknownBadge(t *testing.T) {
	svc, _ := newGameService(t, "")
	_, err := svc.CreateSession("no-such-badge")
	assert.ErrorIs(t, err, ErrUnknownBadge)
}

func TestSessionLifecycle(t *testing.T) {
	svc, _ := newGameService(t, "")

	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)
	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, engine.StatusStepEntered, view.Status)
	assert.Equal(t, "introduction", view.PhaseID)
	assert.Equal(t, 30, view.Stress)
	assert.Equal(t, 100_009, view.Followers)
	assert.Equal(t, "100.0K", view.FollowersDisplay)
	assert.True(t, view.CanAdvance)
	assert.EqualValues(t, 1500, view.AutoAdvanceDelayMS)

	// Two intro steps, then the first hate comment.
	_, err = svc.Advance(view.SessionID)
	require.NoError(t, err)
	view, err = svc.Advance(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAwaitingChoice, view.Status)
	assert.False(t, view.CanAdvance)

	res, err := svc.SelectChoice(view.SessionID, "reply-angry-1")
	require.NoError(t, err)
	assert.Equal(t, 70, res.Outcome.StressNew)
	assert.Equal(t, 200_008, res.Session.Followers)
	require.Len(t, res.Session.History, 1)

	_, err = svc.SelectChoice(view.SessionID, "reply-angry-2")
	assert.ErrorIs(t, err, engine.ErrChoiceUnavailable)
}

func TestGetSessionNotFound(t *testing.T) {
	svc, _ := newGameService(t, "")
	_, err := svc.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestFreeformEvaluationRoundTrip(t *testing.T) {
	// Offline evaluator: the fallback classifier resolves the verdict.
	svc, b := newGameService(t, "")

	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)
	driveToFreeform(t, svc, view.SessionID)

	view, err = svc.SubmitFreeform(view.SessionID, "thank you all, blocking and moving on")
	require.NoError(t, err)
	assert.True(t, view.EvaluationPending)
	assert.Equal(t, engine.StatusEvaluating, view.Status)

	require.Eventually(t, func() bool {
		v, err := svc.GetSession(view.SessionID)
		return err == nil && !v.EvaluationPending
	}, 2*time.Second, 10*time.Millisecond)

	final, err := svc.GetSession(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "completion", final.PhaseID)
	assert.True(t, b.sent("evaluation_result"))
}

func TestFreeformLocalClassifierWhenEvaluationDisabled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"isPositive\": false, \"feedback\": \"remote\", \"score\": 2}"}}]}`))
	}))
	defer srv.Close()

	catalog, err := content.Load()
	require.NoError(t, err)
	log := zap.NewNop()
	evaluator := NewEvaluatorService(llm.NewClient(srv.URL, 2*time.Second), 6, log)
	svc := NewGameService(catalog, evaluator, engine.Config{
		AutoAdvanceDelay:   1500 * time.Millisecond,
		ForcedVariety:      true,
		FreeformEvaluation: false,
	}, log)
	b := &fakeBroadcaster{}
	svc.SetBroadcaster(b)

	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)
	driveToFreeform(t, svc, view.SessionID)

	// The local classifier settles the verdict before SubmitFreeform
	// returns; the configured collaborator is never contacted.
	view, err = svc.SubmitFreeform(view.SessionID, "thank you all for the support")
	require.NoError(t, err)
	assert.False(t, view.EvaluationPending)
	assert.Equal(t, "completion", view.PhaseID)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
	assert.True(t, b.sent("evaluation_result"))
}

func TestFreeformRejectsConcurrentSubmission(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"isPositive\": true, \"feedback\": \"ok\", \"score\": 9}"}}]}`))
	}))
	defer srv.Close()
	defer close(release)

	svc, _ := newGameService(t, srv.URL)
	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)
	driveToFreeform(t, svc, view.SessionID)

	_, err = svc.SubmitFreeform(view.SessionID, "first attempt")
	require.NoError(t, err)

	_, err = svc.SubmitFreeform(view.SessionID, "second attempt")
	assert.ErrorIs(t, err, ErrEvaluationPending)
	_, err = svc.Advance(view.SessionID)
	assert.ErrorIs(t, err, ErrEvaluationPending)
	_, err = svc.SelectChoice(view.SessionID, "anything")
	assert.ErrorIs(t, err, ErrEvaluationPending)
}

func TestResetDiscardsStaleVerdict(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"isPositive\": true, \"feedback\": \"ok\", \"score\": 9}"}}]}`))
	}))
	defer srv.Close()

	svc, b := newGameService(t, srv.URL)
	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)
	driveToFreeform(t, svc, view.SessionID)

	_, err = svc.SubmitFreeform(view.SessionID, "attempt before reset")
	require.NoError(t, err)

	fresh, err := svc.ResetSession(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "introduction", fresh.PhaseID)
	assert.False(t, fresh.EvaluationPending)

	// Let the orphaned request finish; its verdict must not touch the new
	// run.
	close(release)
	time.Sleep(100 * time.Millisecond)

	after, err := svc.GetSession(view.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "introduction", after.PhaseID)
	assert.Equal(t, engine.StatusStepEntered, after.Status)
	assert.False(t, b.sent("evaluation_result"))
}

func TestDeleteSession(t *testing.T) {
	svc, _ := newGameService(t, "")
	view, err := svc.CreateSession("hate-comments")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(view.SessionID))
	_, err = svc.GetSession(view.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(view.SessionID), ErrSessionNotFound)
}
