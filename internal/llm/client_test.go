package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilience-sim/internal/model"
)

func TestCompleteSendsTranscript(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"You are not alone."}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	reply, err := c.Complete(context.Background(), []model.ConversationMessage{
		{Role: model.RoleSystem, Content: "be supportive"},
		{Role: model.RoleUser, Content: "I feel awful"},
	})
	require.NoError(t, err)
	assert.Equal(t, "You are not alone.", reply)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "I feel awful", got.Messages[1].Content)
}

func TestCompleteErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": nope`))
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices":[]}`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(srv.URL, time.Second)
			_, err := c.Complete(context.Background(), []model.ConversationMessage{
				{Role: model.RoleUser, Content: "hi"},
			})
			assert.Error(t, err)
		})
	}
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("", time.Second)
	assert.False(t, c.Enabled())
	_, err := c.Complete(context.Background(), nil)
	assert.Error(t, err)
}
