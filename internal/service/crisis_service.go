package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resilience-sim/internal/llm"
	"resilience-sim/internal/model"
)

// CrisisMode is the conversation's position in the one-way funnel.
type CrisisMode string

const (
	ModeInput        CrisisMode = "input"
	ModeConversation CrisisMode = "conversation"
	ModeStrategies   CrisisMode = "strategies"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrWrongMode            = errors.New("action not allowed in current mode")
	ErrMissingComment       = errors.New("hateful comment text is required")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrMessagePending       = errors.New("a message is already in flight")
	ErrRevealInProgress     = errors.New("previous response is still being revealed")
)

const crisisSystemPrompt = "You are a supportive crisis counselor. Keep responses concise (under 30 words). Ask one simple question to understand their situation better, then gently suggest helpful responses. Be supportive but not overly emotional."

// apologyMessage is appended verbatim when the collaborator call fails; the
// mode is left unchanged so the user can retry.
const apologyMessage = "I'm sorry, I'm having trouble responding right now. Please try sending your message again."

// reveal tracks the character-by-character typing effect for the latest
// assistant message. The revealed prefix is derived from elapsed time, so no
// timer goroutine is needed and the state is trivially queryable.
type reveal struct {
	content   string
	startedAt time.Time
	interval  time.Duration
}

func (r *reveal) revealedAt(now time.Time) string {
	if r.interval <= 0 {
		return r.content
	}
	n := int(now.Sub(r.startedAt) / r.interval)
	if n >= len(r.content) {
		return r.content
	}
	if n < 0 {
		n = 0
	}
	return r.content[:n]
}

func (r *reveal) doneAt(now time.Time) bool {
	return r.revealedAt(now) == r.content
}

// conversation is one crisis funnel run. Transcript is append-only; the
// system prompt lives at index 0 and is never shown to the user.
type conversation struct {
	mu         sync.Mutex
	id         string
	mode       CrisisMode
	crisisCtx  model.CrisisContext
	transcript []model.ConversationMessage
	pending    bool
	reveal     *reveal
}

// CrisisService runs the open-ended support conversations. Unlike the
// scenario engine it keeps no meters and no score, just a transcript and a
// mode.
type CrisisService struct {
	client         *llm.Client
	typingInterval time.Duration
	log            *zap.Logger
	broadcaster    Broadcaster
	now            func() time.Time

	mu            sync.RWMutex
	conversations map[string]*conversation
}

// NewCrisisService creates a new crisis service
func NewCrisisService(client *llm.Client, typingInterval time.Duration, log *zap.Logger) *CrisisService {
	return &CrisisService{
		client:         client,
		typingInterval: typingInterval,
		log:            log,
		now:            time.Now,
		conversations:  make(map[string]*conversation),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *CrisisService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// TypingState is the queryable view of the reveal effect.
type TypingState struct {
	Active   bool   `json:"active"`
	Revealed string `json:"revealed"`
	Complete bool   `json:"complete"`
}

// ConversationView is the transport-facing snapshot of a conversation. The
// system prompt is excluded from Messages.
type ConversationView struct {
	ConversationID string                      `json:"conversationId"`
	Mode           CrisisMode                  `json:"mode"`
	Messages       []model.ConversationMessage `json:"messages"`
	Pending        bool                        `json:"pending"`
	Typing         TypingState                 `json:"typing"`
}

// CreateConversation opens a new funnel in input mode.
func (s *CrisisService) CreateConversation() *ConversationView {
	c := &conversation{
		id:   uuid.NewString(),
		mode: ModeInput,
	}
	s.mu.Lock()
	s.conversations[c.id] = c
	s.mu.Unlock()

	s.log.Info("crisis conversation created", zap.String("conversation", c.id))
	return s.view(c)
}

// GetConversation returns the current view of a conversation.
func (s *CrisisService) GetConversation(id string) (*ConversationView, error) {
	c, err := s.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.viewLocked(c), nil
}

// Begin submits the pasted context and moves the funnel to conversation
// mode. The opening exchange (system prompt plus the context message) seeds
// the transcript that every later turn replays.
func (s *CrisisService) Begin(ctx context.Context, id string, crisisCtx model.CrisisContext) (*ConversationView, error) {
	if strings.TrimSpace(crisisCtx.HatefulComment) == "" {
		return nil, ErrMissingComment
	}
	c, err := s.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeInput {
		return nil, fmt.Errorf("%w: conversation already started", ErrWrongMode)
	}
	if c.pending {
		return nil, ErrMessagePending
	}

	c.crisisCtx = crisisCtx
	c.transcript = []model.ConversationMessage{
		s.message(model.RoleSystem, crisisSystemPrompt),
		s.message(model.RoleUser, buildContextString(crisisCtx)),
	}
	c.mode = ModeConversation

	s.exchange(ctx, c)
	return s.viewLocked(c), nil
}

// SendMessage appends a user turn and requests the next assistant reply. The
// full transcript is resent every call; the collaborator is stateless.
func (s *CrisisService) SendMessage(ctx context.Context, id, text string) (*ConversationView, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	c, err := s.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeConversation {
		return nil, fmt.Errorf("%w: mode is %s", ErrWrongMode, c.mode)
	}
	if c.pending {
		return nil, ErrMessagePending
	}
	if c.reveal != nil && !c.reveal.doneAt(s.now()) {
		return nil, ErrRevealInProgress
	}

	c.transcript = append(c.transcript, s.message(model.RoleUser, text))
	s.exchange(ctx, c)
	return s.viewLocked(c), nil
}

// exchange performs one collaborator round trip and appends the assistant
// reply. c.mu is held on entry and on return; it is released around the
// network call so readers can poll the pending state and a concurrent
// submission is rejected instead of queued behind the lock.
func (s *CrisisService) exchange(ctx context.Context, c *conversation) {
	c.pending = true
	transcript := append([]model.ConversationMessage(nil), c.transcript...)
	c.mu.Unlock()

	reply, err := s.client.Complete(ctx, transcript)

	c.mu.Lock()
	c.pending = false
	if err != nil {
		s.log.Warn("crisis collaborator call failed", zap.String("conversation", c.id), zap.Error(err))
		reply = apologyMessage
	}

	c.transcript = append(c.transcript, s.message(model.RoleAssistant, reply))
	rev := &reveal{content: reply, startedAt: s.now(), interval: s.typingInterval}
	c.reveal = rev

	if s.broadcaster != nil {
		go s.streamReveal(c.id, rev)
	}
}

// streamReveal pushes the typing effect to the conversation's subscribers,
// one frame per revealed character. The loop is bounded by the message
// length, so it always terminates.
func (s *CrisisService) streamReveal(id string, r *reveal) {
	if r.interval <= 0 || len(r.content) == 0 {
		s.broadcaster.BroadcastToSession(id, "typing", TypingState{
			Revealed: r.content,
			Complete: true,
		})
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for n := 1; n <= len(r.content); n++ {
		<-ticker.C
		done := n == len(r.content)
		s.broadcaster.BroadcastToSession(id, "typing", TypingState{
			Active:   !done,
			Revealed: r.content[:n],
			Complete: done,
		})
	}
}

// AdvanceToStrategies moves the funnel to its final stage. One-way: there is
// no path back to conversation or input.
func (s *CrisisService) AdvanceToStrategies(id string) (*ConversationView, error) {
	c, err := s.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending {
		return nil, ErrMessagePending
	}
	c.mode = ModeStrategies
	return s.viewLocked(c), nil
}

// Strategies returns the static coping strategy list. Not generated, not
// personalized; the fixed effect annotations are part of the content.
func (s *CrisisService) Strategies() []model.Strategy {
	return []model.Strategy{
		{
			ID:                   "rant",
			Title:                "Rant Back",
			Icon:                 "😤",
			Description:          "Reply with anger and defend yourself aggressively",
			MentalHealthImpact:   -30,
			CommunityTrustImpact: -40,
			Warning:              "Feeds trolls, escalates situation, damages reputation",
		},
		{
			ID:                   "ignore",
			Title:                "Ignore Forever",
			Icon:                 "🙈",
			Description:          "Don't respond and try to forget about it",
			MentalHealthImpact:   -15,
			CommunityTrustImpact: 0,
			Warning:              "Internal stress accumulates over time",
		},
		{
			ID:                   "block",
			Title:                "Block & Report",
			Icon:                 "🚫",
			Description:          "Remove the user from your space and report to platform",
			MentalHealthImpact:   15,
			CommunityTrustImpact: 5,
			Recommended:          true,
		},
		{
			ID:                   "positive",
			Title:                "Rally Your Community",
			Icon:                 "💪",
			Description:          "Post appreciation for supportive fans without mentioning hate",
			MentalHealthImpact:   20,
			CommunityTrustImpact: 30,
			Recommended:          true,
		},
	}
}

// DeleteConversation abandons a conversation.
func (s *CrisisService) DeleteConversation(id string) error {
	s.mu.Lock()
	_, ok := s.conversations[id]
	delete(s.conversations, id)
	s.mu.Unlock()
	if !ok {
		return ErrConversationNotFound
	}
	if s.broadcaster != nil {
		s.broadcaster.DisconnectSession(id)
	}
	return nil
}

// HasConversation reports whether a conversation id is live.
func (s *CrisisService) HasConversation(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.conversations[id]
	return ok
}

func (s *CrisisService) get(id string) (*conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return c, nil
}

func (s *CrisisService) message(role model.MessageRole, content string) model.ConversationMessage {
	return model.ConversationMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
}

func (s *CrisisService) view(c *conversation) *ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.viewLocked(c)
}

// viewLocked builds the snapshot. Callers hold c.mu.
func (s *CrisisService) viewLocked(c *conversation) *ConversationView {
	msgs := make([]model.ConversationMessage, 0, len(c.transcript))
	for _, m := range c.transcript {
		if m.Role == model.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}

	v := &ConversationView{
		ConversationID: c.id,
		Mode:           c.mode,
		Messages:       msgs,
		Pending:        c.pending,
	}
	if c.reveal != nil {
		now := s.now()
		v.Typing = TypingState{
			Active:   !c.reveal.doneAt(now),
			Revealed: c.reveal.revealedAt(now),
			Complete: c.reveal.doneAt(now),
		}
	}
	return v
}

// buildContextString flattens the pasted context into the opening user turn.
// Image bytes never leave the client; only their count is mentioned.
func buildContextString(ctx model.CrisisContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "I got this hateful comment: %q.", ctx.HatefulComment)
	if ctx.OriginalPost != "" {
		fmt.Fprintf(&sb, " My original post was: %q.", ctx.OriginalPost)
	}
	if ctx.ImageCount > 0 {
		plural := ""
		if ctx.ImageCount > 1 {
			plural = "s"
		}
		fmt.Fprintf(&sb, " I also have %d screenshot%s of the situation.", ctx.ImageCount, plural)
	}
	sb.WriteString(" I need support.")
	return sb.String()
}
