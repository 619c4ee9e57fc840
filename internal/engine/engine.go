// Package engine drives a badge's phase/step/choice graph to completion,
// mutating meters and history along the way. One parameterized engine
// replaces the simple/standard/step-by-step variants of the flow: behavior
// differences are config, not copies.
package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"resilience-sim/internal/meter"
	"resilience-sim/internal/model"
)

// Status is the engine's position in its state machine.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusStepEntered    Status = "step_entered"
	StatusAwaitingChoice Status = "awaiting_choice"
	StatusEvaluating     Status = "evaluating"
	StatusCompleted      Status = "completed"
)

// Config parameterizes one engine instance.
type Config struct {
	// AutoAdvanceDelay is surfaced to the presentation layer for steps that
	// do not require a choice; the engine itself never sleeps.
	AutoAdvanceDelay time.Duration

	// ForcedVariety enables comparison-pair enforcement from the badge's
	// rule table.
	ForcedVariety bool

	// FreeformEvaluation routes freeform submissions through the external
	// evaluator; when disabled the caller falls back to the local
	// classifier directly.
	FreeformEvaluation bool
}

var (
	ErrNotAwaitingChoice = errors.New("engine is not awaiting a choice")
	ErrChoiceUnavailable = errors.New("choice is not currently offered")
	ErrFreeformRequired  = errors.New("choice requires a freeform submission")
	ErrNoFreeformChoice  = errors.New("current step has no freeform choice")
	ErrEmptyInput        = errors.New("freeform input is empty")
	ErrCannotAdvance     = errors.New("cannot advance while a choice is pending")
	ErrCompleted         = errors.New("badge already completed")
	ErrNotEvaluating     = errors.New("no freeform evaluation in progress")
)

// ChoiceOutcome summarizes the observable effect of one resolved choice.
type ChoiceOutcome struct {
	ChoiceID        string `json:"choiceId"`
	ChoiceText      string `json:"choiceText"`
	Feedback        string `json:"feedback,omitempty"`
	FollowersChange int    `json:"followersChange"`
	StressChange    int    `json:"stressChange"`
	FollowersNew    int    `json:"followersNew"`
	StressNew       int    `json:"stressNew"`
}

// Engine walks a single badge for a single session. Not safe for concurrent
// use; the owning service serializes access.
type Engine struct {
	badge *model.Badge
	cfg   Config
	log   *zap.Logger

	status      Status
	state       model.GameState
	lastComment string
}

// New builds an engine positioned before the first step. Call Start to
// enter the badge.
func New(badge *model.Badge, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		badge:  badge,
		cfg:    cfg,
		log:    log,
		status: StatusIdle,
		state: model.GameState{
			CurrentBadge:    badge.ID,
			Meters:          badge.Config.StartMeters,
			CompletedBadges: []string{},
			History:         []model.HistoryEntry{},
			VisibleCards:    []model.Card{},
			TriedChoices:    []string{},
		},
	}
}

// Start enters the first step of the first phase.
func (e *Engine) Start() {
	if e.status != StatusIdle {
		return
	}
	e.enterStep(0, 0)
}

// Status returns the engine's current machine state.
func (e *Engine) Status() Status { return e.status }

// Config returns the engine's parameterization.
func (e *Engine) Config() Config { return e.cfg }

// Badge returns the authored badge being traversed.
func (e *Engine) Badge() *model.Badge { return e.badge }

// State returns a copy of the session state; slices are cloned so callers
// cannot violate the append-only guarantees.
func (e *Engine) State() model.GameState {
	s := e.state
	s.CompletedBadges = append([]string(nil), e.state.CompletedBadges...)
	s.History = append([]model.HistoryEntry(nil), e.state.History...)
	s.VisibleCards = append([]model.Card(nil), e.state.VisibleCards...)
	s.TriedChoices = append([]string(nil), e.state.TriedChoices...)
	return s
}

// LastComment is the content of the most recent comment card shown, used as
// evaluation context for freeform practice.
func (e *Engine) LastComment() string { return e.lastComment }

// CurrentPhase returns the phase the engine is positioned in.
func (e *Engine) CurrentPhase() *model.Phase {
	if e.state.CurrentPhase >= len(e.badge.Phases) {
		return nil
	}
	return &e.badge.Phases[e.state.CurrentPhase]
}

func (e *Engine) currentStep() *model.Step {
	p := e.CurrentPhase()
	if p == nil || e.state.CurrentStep >= len(p.Steps) {
		return nil
	}
	return &p.Steps[e.state.CurrentStep]
}

func (e *Engine) choiceSet() []model.Choice {
	s := e.currentStep()
	if s != nil && len(s.Choices) > 0 {
		return s.Choices
	}
	if p := e.CurrentPhase(); p != nil {
		return p.Choices
	}
	return nil
}

// AvailableChoices returns the choices currently offered, filtered by the
// forced-variety rule. Nil unless the engine is awaiting a choice.
func (e *Engine) AvailableChoices() []model.Choice {
	if e.status != StatusAwaitingChoice {
		return nil
	}
	choices := e.choiceSet()
	phase := e.CurrentPhase()
	if !e.cfg.ForcedVariety || phase == nil {
		return choices
	}

	pair, isFirst, ok := e.badge.Pair(phase.ID)
	if !ok {
		return choices
	}

	if isFirst {
		// While exhausting the first phase, offer only untried siblings.
		if pair.ExhaustFirst && e.triedInPhase(choices) > 0 {
			var remaining []model.Choice
			for _, c := range choices {
				if !e.state.Tried(c.ID) {
					remaining = append(remaining, c)
				}
			}
			return remaining
		}
		return choices
	}

	// Second phase of the pair: offer exactly the complement of the option
	// chosen first in the paired phase.
	if first, ok := e.firstChoiceIn(pair.FirstPhase); ok {
		if to, ok := pair.Complement[first]; ok {
			for _, c := range choices {
				if c.ID == to {
					return []model.Choice{c}
				}
			}
		}
	}
	return choices
}

// firstChoiceIn returns the earliest history entry recorded for the given
// phase. History order keeps the complement deterministic even when the
// first phase was exhausted.
func (e *Engine) firstChoiceIn(phaseID string) (string, bool) {
	for _, h := range e.state.History {
		if h.PhaseID == phaseID {
			return h.ChoiceID, true
		}
	}
	return "", false
}

// FreeformChoice returns the offered freeform choice, if the current step
// has one.
func (e *Engine) FreeformChoice() (model.Choice, bool) {
	for _, c := range e.AvailableChoices() {
		if c.IsFreeform {
			return c, true
		}
	}
	return model.Choice{}, false
}

// SelectChoice resolves a fixed (non-freeform) choice: appends history and
// triedChoices, applies clamped meter deltas, appends the feedback card,
// and either advances or re-enters AwaitingChoice when the forced-variety
// rule is not yet satisfied. Invalid selections are rejected without any
// state mutation.
func (e *Engine) SelectChoice(choiceID string) (*ChoiceOutcome, error) {
	if e.status == StatusCompleted {
		return nil, ErrCompleted
	}
	if e.status != StatusAwaitingChoice {
		return nil, ErrNotAwaitingChoice
	}
	available := e.AvailableChoices()
	var choice *model.Choice
	for i := range available {
		if available[i].ID == choiceID {
			choice = &available[i]
			break
		}
	}
	if choice == nil {
		return nil, fmt.Errorf("%w: %s", ErrChoiceUnavailable, choiceID)
	}
	if choice.IsFreeform {
		return nil, ErrFreeformRequired
	}

	phase := e.CurrentPhase()
	rng := e.badge.Config.FollowerRange
	oldFollowers := meter.Followers(e.state.Meters, rng)
	oldStress := meter.Stress(e.state.Meters)

	e.state.Meters = meter.ApplyDelta(e.state.Meters, choice.Effects)
	e.state.History = append(e.state.History, model.HistoryEntry{PhaseID: phase.ID, ChoiceID: choice.ID})
	e.state.TriedChoices = append(e.state.TriedChoices, choice.ID)

	if choice.Feedback != "" {
		e.state.VisibleCards = append(e.state.VisibleCards, model.Card{
			ID:      fmt.Sprintf("feedback-%s", choice.ID),
			Type:    model.CardFeedback,
			Content: choice.Feedback,
		})
	}

	outcome := &ChoiceOutcome{
		ChoiceID:        choice.ID,
		ChoiceText:      choice.Text,
		Feedback:        choice.Feedback,
		FollowersChange: meter.Followers(e.state.Meters, rng) - oldFollowers,
		StressChange:    meter.Stress(e.state.Meters) - oldStress,
		FollowersNew:    meter.Followers(e.state.Meters, rng),
		StressNew:       meter.Stress(e.state.Meters),
	}

	e.log.Info("choice resolved",
		zap.String("badge", e.badge.ID),
		zap.String("phase", phase.ID),
		zap.String("choice", choice.ID),
		zap.Int("mentalHealth", e.state.Meters.MentalHealth),
		zap.Int("communityTrust", e.state.Meters.CommunityTrust),
	)

	if e.varietyUnsatisfied(phase) {
		// The comparison pair demands the sibling choice be tried before
		// the phase can be passed.
		e.status = StatusAwaitingChoice
		return outcome, nil
	}

	e.advanceStep()
	return outcome, nil
}

// Advance moves past a step that does not require a choice.
func (e *Engine) Advance() error {
	switch e.status {
	case StatusCompleted:
		return ErrCompleted
	case StatusStepEntered:
		e.advanceStep()
		return nil
	default:
		return ErrCannotAdvance
	}
}

// BeginFreeform stores the user's text and parks the engine in Evaluating
// until a verdict arrives. The engine applies the evaluator's verdict, not
// a fixed delta.
func (e *Engine) BeginFreeform(text string) error {
	if e.status == StatusCompleted {
		return ErrCompleted
	}
	if e.status != StatusAwaitingChoice {
		return ErrNotAwaitingChoice
	}
	if _, ok := e.FreeformChoice(); !ok {
		return ErrNoFreeformChoice
	}
	if text == "" {
		return ErrEmptyInput
	}
	e.state.FreeformInput = text
	e.status = StatusEvaluating
	return nil
}

// ResolveFreeform applies an evaluation verdict. A qualifying verdict
// advances; otherwise the feedback card is appended and the engine returns
// to AwaitingChoice with a cleared input buffer so the user can retry
// indefinitely.
func (e *Engine) ResolveFreeform(verdict model.Evaluation) error {
	if e.status != StatusEvaluating {
		return ErrNotEvaluating
	}
	e.state.FreeformInput = ""
	if verdict.Feedback != "" {
		e.state.VisibleCards = append(e.state.VisibleCards, model.Card{
			ID:      fmt.Sprintf("freeform-feedback-%d", len(e.state.VisibleCards)),
			Type:    model.CardFeedback,
			Content: verdict.Feedback,
		})
	}

	e.log.Info("freeform evaluated",
		zap.String("badge", e.badge.ID),
		zap.Bool("isPositive", verdict.IsPositive),
		zap.Int("score", verdict.Score),
	)

	if verdict.IsPositive {
		e.advanceStep()
		return nil
	}
	e.status = StatusAwaitingChoice
	return nil
}

func (e *Engine) triedInPhase(choices []model.Choice) int {
	n := 0
	for _, c := range choices {
		if e.state.Tried(c.ID) {
			n++
		}
	}
	return n
}

func (e *Engine) varietyUnsatisfied(phase *model.Phase) bool {
	if !e.cfg.ForcedVariety {
		return false
	}
	pair, isFirst, ok := e.badge.Pair(phase.ID)
	if !ok || !isFirst || !pair.ExhaustFirst {
		return false
	}
	choices := e.choiceSet()
	return e.triedInPhase(choices) < len(choices)
}

func (e *Engine) advanceStep() {
	phase := e.CurrentPhase()
	if phase != nil && e.state.CurrentStep+1 < len(phase.Steps) {
		e.enterStep(e.state.CurrentPhase, e.state.CurrentStep+1)
		return
	}
	if e.state.CurrentPhase+1 < len(e.badge.Phases) {
		e.enterStep(e.state.CurrentPhase+1, 0)
		return
	}
	e.complete()
}

func (e *Engine) enterStep(phaseIdx, stepIdx int) {
	e.state.CurrentPhase = phaseIdx
	e.state.CurrentStep = stepIdx
	phase := &e.badge.Phases[phaseIdx]
	step := &phase.Steps[stepIdx]

	e.state.VisibleCards = e.populateCards(phase, step)
	for _, c := range e.state.VisibleCards {
		if c.Type == model.CardComment {
			e.lastComment = c.Content
		}
	}

	if step.RequiresChoiceToProgress {
		e.status = StatusAwaitingChoice
	} else {
		e.status = StatusStepEntered
	}

	e.log.Debug("step entered",
		zap.String("badge", e.badge.ID),
		zap.String("phase", phase.ID),
		zap.String("step", step.ID),
		zap.String("status", string(e.status)),
	)
}

// populateCards returns the step's authored cards, or synthesizes the
// outcome card from the rule table when the step carries none.
func (e *Engine) populateCards(phase *model.Phase, step *model.Step) []model.Card {
	if len(step.Cards) > 0 {
		return append([]model.Card(nil), step.Cards...)
	}
	if len(e.state.History) == 0 {
		return []model.Card{}
	}
	last := e.state.History[len(e.state.History)-1]
	if card, ok := e.badge.OutcomeCardFor(phase.ID, last.ChoiceID); ok {
		return []model.Card{card}
	}
	if len(e.badge.Rules.OutcomeCards) > 0 {
		e.log.Warn("no outcome card for choice",
			zap.String("phase", phase.ID),
			zap.String("choice", last.ChoiceID),
		)
	}
	return []model.Card{}
}

func (e *Engine) complete() {
	e.status = StatusCompleted
	e.state.VisibleCards = []model.Card{}
	e.state.Meters = e.badge.Config.CompletionMeters
	for _, id := range e.state.CompletedBadges {
		if id == e.badge.ID {
			return
		}
	}
	e.state.CompletedBadges = append(e.state.CompletedBadges, e.badge.ID)
	e.log.Info("badge completed", zap.String("badge", e.badge.ID))
}
