package model

// PhaseType categorizes a phase's role within a badge.
type PhaseType string

const (
	PhaseScenario   PhaseType = "scenario"
	PhaseLesson     PhaseType = "lesson"
	PhasePractice   PhaseType = "practice"
	PhaseCompletion PhaseType = "completion"
)

// CardType is the kind of message unit a card renders as.
type CardType string

const (
	CardPost     CardType = "post"
	CardComment  CardType = "comment"
	CardReply    CardType = "reply"
	CardFeedback CardType = "feedback"
)

// Card is a single displayed message unit. Cards are append-only within a
// step's visible set and never mutated after creation.
type Card struct {
	ID         string   `json:"id" yaml:"id"`
	Type       CardType `json:"type" yaml:"type"`
	Author     string   `json:"author,omitempty" yaml:"author,omitempty"`
	Content    string   `json:"content" yaml:"content"`
	IsUserPost bool     `json:"isUserPost,omitempty" yaml:"isUserPost,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// Effects are the signed meter deltas a choice applies.
type Effects struct {
	MentalHealth   int `json:"mentalHealth,omitempty" yaml:"mentalHealth,omitempty"`
	CommunityTrust int `json:"communityTrust,omitempty" yaml:"communityTrust,omitempty"`
}

// Choice is a selectable (or freeform text-entry) response option.
type Choice struct {
	ID         string  `json:"id" yaml:"id"`
	Text       string  `json:"text" yaml:"text"`
	Effects    Effects `json:"effects" yaml:"effects"`
	Feedback   string  `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	IsFreeform bool    `json:"isFreeform,omitempty" yaml:"isFreeform,omitempty"`
}

// Step controls card reveal and choice gating within a phase.
type Step struct {
	ID                       string   `json:"id" yaml:"id"`
	Cards                    []Card   `json:"cards" yaml:"cards"`
	Choices                  []Choice `json:"choices,omitempty" yaml:"choices,omitempty"`
	RequiresChoiceToProgress bool     `json:"requiresChoiceToProgress" yaml:"requiresChoiceToProgress"`
}

// Phase is a major beat within a badge. Choices may live on the phase
// (legacy authored shape) or on individual steps; both are supported.
type Phase struct {
	ID         string    `json:"id" yaml:"id"`
	Type       PhaseType `json:"type" yaml:"type"`
	Narrative  string    `json:"narrative" yaml:"narrative"`
	LessonText string    `json:"lessonText,omitempty" yaml:"lessonText,omitempty"`
	Steps      []Step    `json:"steps" yaml:"steps"`
	Choices    []Choice  `json:"choices,omitempty" yaml:"choices,omitempty"`
}

// FollowerRange maps community trust 0..100 onto a follower count.
type FollowerRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// BadgeConfig holds per-badge numeric tuning. Authored as data, not code.
type BadgeConfig struct {
	StartMeters      Meters        `json:"startMeters" yaml:"startMeters"`
	CompletionMeters Meters        `json:"completionMeters" yaml:"completionMeters"`
	FollowerRange    FollowerRange `json:"followerRange" yaml:"followerRange"`
}

// ComparisonPair marks two phases as a forced-variety pair: the second
// phase offers only the complement of whatever was chosen first, so the
// user experiences both paired behaviors exactly once. When ExhaustFirst is
// set, the first phase additionally re-offers its untried choices until
// every one has been exercised.
type ComparisonPair struct {
	FirstPhase   string            `json:"firstPhase" yaml:"firstPhase"`
	SecondPhase  string            `json:"secondPhase" yaml:"secondPhase"`
	ExhaustFirst bool              `json:"exhaustFirst,omitempty" yaml:"exhaustFirst,omitempty"`
	Complement   map[string]string `json:"complement" yaml:"complement"`
}

// OutcomeCard is one entry of the declarative (phaseID, choiceID) -> card
// lookup used to populate outcome steps that carry no authored cards.
type OutcomeCard struct {
	Phase  string `json:"phase" yaml:"phase"`
	Choice string `json:"choice" yaml:"choice"`
	Card   Card   `json:"card" yaml:"card"`
}

// BadgeRules is the rule table for a badge's authored conventions.
type BadgeRules struct {
	ComparisonPairs []ComparisonPair `json:"comparisonPairs,omitempty" yaml:"comparisonPairs,omitempty"`
	OutcomeCards    []OutcomeCard    `json:"outcomeCards,omitempty" yaml:"outcomeCards,omitempty"`
}

// Badge is a complete training module: immutable authored content loaded at
// startup and never mutated.
type Badge struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Icon        string      `json:"icon" yaml:"icon"`
	Config      BadgeConfig `json:"config" yaml:"config"`
	Rules       BadgeRules  `json:"rules" yaml:"rules"`
	Phases      []Phase     `json:"phases" yaml:"phases"`
}

// Pair returns the comparison pair that involves the given phase, if any,
// along with whether the phase is the first of the pair.
func (b *Badge) Pair(phaseID string) (*ComparisonPair, bool, bool) {
	for i := range b.Rules.ComparisonPairs {
		p := &b.Rules.ComparisonPairs[i]
		if p.FirstPhase == phaseID {
			return p, true, true
		}
		if p.SecondPhase == phaseID {
			return p, false, true
		}
	}
	return nil, false, false
}

// OutcomeCardFor looks up the synthesized card for an outcome phase given
// the previously resolved choice.
func (b *Badge) OutcomeCardFor(phaseID, choiceID string) (Card, bool) {
	for _, oc := range b.Rules.OutcomeCards {
		if oc.Phase == phaseID && oc.Choice == choiceID {
			return oc.Card, true
		}
	}
	return Card{}, false
}
