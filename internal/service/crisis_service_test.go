package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"resilience-sim/internal/llm"
	"resilience-sim/internal/model"
)

type recordedRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCrisisService(t *testing.T, handler http.HandlerFunc, interval time.Duration) (*CrisisService, *fakeBroadcaster, *time.Time) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc := NewCrisisService(llm.NewClient(srv.URL, 2*time.Second), interval, zap.NewNop())
	b := &fakeBroadcaster{}
	svc.SetBroadcaster(b)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, b, &clock
}

func counselorReply(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": text}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestCrisisFunnelHappyPath(t *testing.T) {
	var requests []recordedRequest
	svc, _, clock := newCrisisService(t, func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		counselorReply("That sounds really hard. What platform did this happen on?")(w, r)
	}, 0)

	v := svc.CreateConversation()
	assert.Equal(t, ModeInput, v.Mode)
	assert.Empty(t, v.Messages)

	_, err := svc.SendMessage(context.Background(), v.ConversationID, "hello?")
	assert.ErrorIs(t, err, ErrWrongMode)

	v, err = svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{
		HatefulComment: "You're a fraud, stop scamming everyone!",
		OriginalPost:   "My new tutorial is up!",
		ImageCount:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeConversation, v.Mode)

	// The opening request carries the system prompt plus the flattened
	// context.
	require.Len(t, requests, 1)
	require.Len(t, requests[0].Messages, 2)
	assert.Equal(t, "system", requests[0].Messages[0].Role)
	assert.Contains(t, requests[0].Messages[0].Content, "supportive crisis counselor")
	assert.Equal(t, "user", requests[0].Messages[1].Role)
	ctx := requests[0].Messages[1].Content
	assert.Contains(t, ctx, `I got this hateful comment: "You're a fraud, stop scamming everyone!".`)
	assert.Contains(t, ctx, `My original post was: "My new tutorial is up!".`)
	assert.Contains(t, ctx, "2 screenshots of the situation")
	assert.Contains(t, ctx, "I need support.")

	// System prompt is never shown; user context and assistant reply are.
	require.Len(t, v.Messages, 2)
	assert.Equal(t, model.RoleUser, v.Messages[0].Role)
	assert.Equal(t, model.RoleAssistant, v.Messages[1].Role)

	// Each turn replays the whole transcript.
	*clock = clock.Add(time.Hour)
	v, err = svc.SendMessage(context.Background(), v.ConversationID, "It was on my main channel")
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Len(t, requests[1].Messages, 4)
	assert.Equal(t, "assistant", requests[1].Messages[2].Role)
	assert.Equal(t, "It was on my main channel", requests[1].Messages[3].Content)
	assert.Len(t, v.Messages, 4)
}

func TestCrisisBeginValidation(t *testing.T) {
	svc, _, _ := newCrisisService(t, counselorReply("hi"), 0)
	v := svc.CreateConversation()

	_, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "   "})
	assert.ErrorIs(t, err, ErrMissingComment)

	_, err = svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "mean words"})
	require.NoError(t, err)

	// The funnel is one-way; a second Begin is rejected.
	_, err = svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "mean words"})
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestCrisisTypingRevealGatesSubmit(t *testing.T) {
	svc, _, clock := newCrisisService(t, counselorReply("take a deep breath"), 50*time.Millisecond)

	v := svc.CreateConversation()
	v, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "x"})
	require.NoError(t, err)
	assert.True(t, v.Typing.Active)
	assert.Empty(t, v.Typing.Revealed)

	_, err = svc.SendMessage(context.Background(), v.ConversationID, "ok")
	assert.ErrorIs(t, err, ErrRevealInProgress)

	// Partway through, a prefix is revealed.
	*clock = clock.Add(4 * 50 * time.Millisecond)
	v, err = svc.GetConversation(v.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "take", v.Typing.Revealed)
	assert.True(t, v.Typing.Active)

	// Once elapsed time covers the whole message the gate opens.
	*clock = clock.Add(time.Duration(len("take a deep breath")) * 50 * time.Millisecond)
	v, err = svc.GetConversation(v.ConversationID)
	require.NoError(t, err)
	assert.True(t, v.Typing.Complete)

	_, err = svc.SendMessage(context.Background(), v.ConversationID, "ok")
	require.NoError(t, err)
}

func TestCrisisConcurrentSubmissionRejected(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	svc, _, _ := newCrisisService(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			<-release
		}
		counselorReply("here with you")(w, r)
	}, 0)

	v := svc.CreateConversation()
	v, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "x"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendMessage(context.Background(), v.ConversationID, "I feel awful")
		done <- err
	}()

	// While the reply is in flight the pending flag is visible to pollers.
	require.Eventually(t, func() bool {
		view, err := svc.GetConversation(v.ConversationID)
		return err == nil && view.Pending
	}, 2*time.Second, 5*time.Millisecond)

	_, err = svc.SendMessage(context.Background(), v.ConversationID, "hello??")
	assert.ErrorIs(t, err, ErrMessagePending)
	_, err = svc.AdvanceToStrategies(v.ConversationID)
	assert.ErrorIs(t, err, ErrMessagePending)

	close(release)
	require.NoError(t, <-done)

	view, err := svc.GetConversation(v.ConversationID)
	require.NoError(t, err)
	assert.False(t, view.Pending)
	assert.Len(t, view.Messages, 4)
}

func TestCrisisTypingFramesPushed(t *testing.T) {
	svc, b, _ := newCrisisService(t, counselorReply("breathe"), 2*time.Millisecond)

	v := svc.CreateConversation()
	_, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "x"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		frames := b.typingFrames()
		return len(frames) > 0 && frames[len(frames)-1].Complete
	}, 2*time.Second, 5*time.Millisecond)

	frames := b.typingFrames()
	require.Len(t, frames, len("breathe"))
	assert.Equal(t, "b", frames[0].Revealed)
	assert.True(t, frames[0].Active)
	last := frames[len(frames)-1]
	assert.Equal(t, "breathe", last.Revealed)
	assert.False(t, last.Active)
	assert.True(t, last.Complete)
}

func TestCrisisFailureAppendsApology(t *testing.T) {
	svc, _, _ := newCrisisService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, 0)

	v := svc.CreateConversation()
	v, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "x"})
	require.NoError(t, err)

	// Mode survives the failure and the apology lands as a normal
	// assistant turn, so the user can retry.
	assert.Equal(t, ModeConversation, v.Mode)
	require.Len(t, v.Messages, 2)
	assert.Equal(t, model.RoleAssistant, v.Messages[1].Role)
	assert.Equal(t, apologyMessage, v.Messages[1].Content)

	_, err = svc.SendMessage(context.Background(), v.ConversationID, "are you there?")
	require.NoError(t, err)
}

func TestCrisisStrategies(t *testing.T) {
	svc, _, _ := newCrisisService(t, counselorReply("hi"), 0)

	list := svc.Strategies()
	require.Len(t, list, 4)
	ids := make([]string, 0, 4)
	for _, st := range list {
		ids = append(ids, st.ID)
	}
	assert.Equal(t, []string{"rant", "ignore", "block", "positive"}, ids)

	assert.NotEmpty(t, list[0].Warning)
	assert.False(t, list[0].Recommended)
	assert.True(t, list[2].Recommended)
	assert.True(t, list[3].Recommended)
	assert.Equal(t, -30, list[0].MentalHealthImpact)
	assert.Equal(t, 30, list[3].CommunityTrustImpact)
}

func TestCrisisAdvanceToStrategiesIsOneWay(t *testing.T) {
	svc, _, _ := newCrisisService(t, counselorReply("hi"), 0)

	v := svc.CreateConversation()
	v, err := svc.Begin(context.Background(), v.ConversationID, model.CrisisContext{HatefulComment: "x"})
	require.NoError(t, err)

	v, err = svc.AdvanceToStrategies(v.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, ModeStrategies, v.Mode)

	_, err = svc.SendMessage(context.Background(), v.ConversationID, "wait")
	assert.ErrorIs(t, err, ErrWrongMode)
}

func TestCrisisDeleteConversation(t *testing.T) {
	svc, _, _ := newCrisisService(t, counselorReply("hi"), 0)

	v := svc.CreateConversation()
	require.NoError(t, svc.DeleteConversation(v.ConversationID))
	_, err := svc.GetConversation(v.ConversationID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, svc.DeleteConversation(v.ConversationID), ErrConversationNotFound)
}
