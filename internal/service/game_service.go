package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resilience-sim/internal/content"
	"resilience-sim/internal/engine"
	"resilience-sim/internal/meter"
	"resilience-sim/internal/model"
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnknownBadge      = errors.New("unknown badge")
	ErrEvaluationPending = errors.New("an evaluation is already in flight")
)

// session is one player's in-memory simulation run. The mutex serializes
// engine access; generation is bumped on reset so a verdict arriving for a
// torn-down run is discarded.
type session struct {
	mu         sync.Mutex
	id         string
	eng        *engine.Engine
	pending    bool
	generation int
	createdAt  time.Time
}

// GameService owns the session registry and mediates between transport and
// the scenario engine. State is entirely in memory; sessions die with the
// process.
type GameService struct {
	catalog     *content.Catalog
	evaluator   *EvaluatorService
	engineCfg   engine.Config
	log         *zap.Logger
	broadcaster Broadcaster

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewGameService creates a new game service
func NewGameService(catalog *content.Catalog, evaluator *EvaluatorService, engineCfg engine.Config, log *zap.Logger) *GameService {
	return &GameService{
		catalog:   catalog,
		evaluator: evaluator,
		engineCfg: engineCfg,
		log:       log,
		sessions:  make(map[string]*session),
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *GameService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SessionView is the transport-facing snapshot of a session, including the
// meters derived for display.
type SessionView struct {
	SessionID          string               `json:"sessionId"`
	BadgeID            string               `json:"badgeId"`
	BadgeName          string               `json:"badgeName"`
	Status             engine.Status        `json:"status"`
	PhaseID            string               `json:"phaseId,omitempty"`
	PhaseType          model.PhaseType      `json:"phaseType,omitempty"`
	Narrative          string               `json:"narrative,omitempty"`
	Cards              []model.Card         `json:"cards"`
	Choices            []model.Choice       `json:"choices"`
	Meters             model.Meters         `json:"meters"`
	Stress             int                  `json:"stress"`
	Followers          int                  `json:"followers"`
	FollowersDisplay   string               `json:"followersDisplay"`
	History            []model.HistoryEntry `json:"history"`
	CompletedBadges    []string             `json:"completedBadges"`
	EvaluationPending  bool                 `json:"evaluationPending"`
	CanAdvance         bool                 `json:"canAdvance"`
	AutoAdvanceDelayMS int64                `json:"autoAdvanceDelayMs"`
}

// CreateSession starts a new run of the given badge.
func (s *GameService) CreateSession(badgeID string) (*SessionView, error) {
	badge, ok := s.catalog.Get(badgeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBadge, badgeID)
	}

	sess := &session{
		id:        uuid.NewString(),
		eng:       engine.New(badge, s.engineCfg, s.log),
		createdAt: time.Now(),
	}
	sess.eng.Start()

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.Info("session created", zap.String("session", sess.id), zap.String("badge", badgeID))
	return s.view(sess), nil
}

// GetSession returns the current view of a session.
func (s *GameService) GetSession(sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

// ChoiceResult pairs the outcome of a resolved choice with the refreshed
// session view.
type ChoiceResult struct {
	Outcome *engine.ChoiceOutcome `json:"outcome"`
	Session *SessionView          `json:"session"`
}

// SelectChoice resolves a fixed choice in the session's engine.
func (s *GameService) SelectChoice(sessionID, choiceID string) (*ChoiceResult, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending {
		return nil, ErrEvaluationPending
	}
	outcome, err := sess.eng.SelectChoice(choiceID)
	if err != nil {
		return nil, err
	}

	view := s.viewLocked(sess)
	if view.Status == engine.StatusCompleted {
		s.broadcast(sess.id, "badge_completed", view)
	}
	return &ChoiceResult{Outcome: outcome, Session: view}, nil
}

// Advance moves the session past a step that requires no choice.
func (s *GameService) Advance(sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending {
		return nil, ErrEvaluationPending
	}
	if err := sess.eng.Advance(); err != nil {
		return nil, err
	}

	view := s.viewLocked(sess)
	if view.Status == engine.StatusCompleted {
		s.broadcast(sess.id, "badge_completed", view)
	}
	return view, nil
}

// SubmitFreeform hands the user's text to the evaluator asynchronously. The
// pending flag guarantees at most one in-flight evaluation per session; the
// verdict is delivered over the session's WebSocket. With freeform
// evaluation disabled the local classifier resolves the submission before
// this returns.
func (s *GameService) SubmitFreeform(sessionID, text string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.pending {
		return nil, ErrEvaluationPending
	}
	if err := sess.eng.BeginFreeform(text); err != nil {
		return nil, err
	}

	// With external evaluation disabled the local classifier settles the
	// verdict in-request; nothing goes over the wire.
	if !s.engineCfg.FreeformEvaluation {
		verdict := s.evaluator.EvaluateLocal(text)
		if err := sess.eng.ResolveFreeform(verdict); err != nil {
			return nil, err
		}
		view := s.viewLocked(sess)
		s.broadcast(sess.id, "evaluation_result", map[string]interface{}{
			"evaluation": verdict,
			"session":    view,
		})
		if view.Status == engine.StatusCompleted {
			s.broadcast(sess.id, "badge_completed", view)
		}
		return view, nil
	}

	sess.pending = true

	gen := sess.generation
	comment := sess.eng.LastComment()
	go s.evaluateAsync(sess, gen, comment, text)

	return s.viewLocked(sess), nil
}

func (s *GameService) evaluateAsync(sess *session, gen int, comment, text string) {
	verdict := s.evaluator.Evaluate(context.Background(), comment, text)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// A reset bumped the generation while we were waiting; the run this
	// verdict belongs to no longer exists.
	if sess.generation != gen {
		s.log.Debug("stale evaluation discarded", zap.String("session", sess.id))
		return
	}
	sess.pending = false
	if err := sess.eng.ResolveFreeform(verdict); err != nil {
		s.log.Warn("verdict arrived in unexpected state", zap.String("session", sess.id), zap.Error(err))
		return
	}

	view := s.viewLocked(sess)
	s.broadcast(sess.id, "evaluation_result", map[string]interface{}{
		"evaluation": verdict,
		"session":    view,
	})
	if view.Status == engine.StatusCompleted {
		s.broadcast(sess.id, "badge_completed", view)
	}
}

// ResetSession restarts the session's badge from the beginning. Any
// in-flight evaluation is orphaned and its verdict discarded on arrival.
func (s *GameService) ResetSession(sessionID string) (*SessionView, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	badge := sess.eng.Badge()
	sess.generation++
	sess.pending = false
	sess.eng = engine.New(badge, s.engineCfg, s.log)
	sess.eng.Start()

	s.log.Info("session reset", zap.String("session", sess.id), zap.String("badge", badge.ID))
	return s.viewLocked(sess), nil
}

// DeleteSession removes a session from the registry.
func (s *GameService) DeleteSession(sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	sess.generation++
	sess.pending = false
	sess.mu.Unlock()

	if s.broadcaster != nil {
		s.broadcaster.DisconnectSession(sessionID)
	}
	return nil
}

// HasSession reports whether a session id is live.
func (s *GameService) HasSession(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func (s *GameService) get(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

func (s *GameService) view(sess *session) *SessionView {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess)
}

// viewLocked builds the transport snapshot. Callers hold sess.mu.
func (s *GameService) viewLocked(sess *session) *SessionView {
	eng := sess.eng
	badge := eng.Badge()
	state := eng.State()

	v := &SessionView{
		SessionID:          sess.id,
		BadgeID:            badge.ID,
		BadgeName:          badge.Name,
		Status:             eng.Status(),
		Cards:              state.VisibleCards,
		Choices:            eng.AvailableChoices(),
		Meters:             state.Meters,
		Stress:             meter.Stress(state.Meters),
		Followers:          meter.Followers(state.Meters, badge.Config.FollowerRange),
		FollowersDisplay:   meter.FormatFollowers(meter.Followers(state.Meters, badge.Config.FollowerRange)),
		History:            state.History,
		CompletedBadges:    state.CompletedBadges,
		EvaluationPending:  sess.pending,
		CanAdvance:         eng.Status() == engine.StatusStepEntered,
		AutoAdvanceDelayMS: s.engineCfg.AutoAdvanceDelay.Milliseconds(),
	}
	if v.Choices == nil {
		v.Choices = []model.Choice{}
	}
	if phase := eng.CurrentPhase(); phase != nil {
		v.PhaseID = phase.ID
		v.PhaseType = phase.Type
		v.Narrative = phase.Narrative
	}
	return v
}

func (s *GameService) broadcast(sessionID, msgType string, payload interface{}) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastToSession(sessionID, msgType, payload)
	}
}
