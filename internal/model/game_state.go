package model

// Meters are the two bounded [0,100] gauges driving the simulation.
type Meters struct {
	MentalHealth   int `json:"mentalHealth" yaml:"mentalHealth"`
	CommunityTrust int `json:"communityTrust" yaml:"communityTrust"`
}

// HistoryEntry records one resolved choice. History is an append-only audit
// trail; it never shrinks or reorders.
type HistoryEntry struct {
	PhaseID  string `json:"phaseId"`
	ChoiceID string `json:"choiceId"`
}

// GameState is the mutable per-session simulation state. It is created at
// session start, mutated exclusively by the scenario engine, and torn down
// on badge completion or explicit reset.
type GameState struct {
	CurrentBadge    string         `json:"currentBadge"`
	CurrentPhase    int            `json:"currentPhase"`
	CurrentStep     int            `json:"currentStep"`
	CompletedBadges []string       `json:"completedBadges"`
	Meters          Meters         `json:"meters"`
	History         []HistoryEntry `json:"history"`
	VisibleCards    []Card         `json:"visibleCards"`
	TriedChoices    []string       `json:"triedChoices"`
	FreeformInput   string         `json:"freeformInput,omitempty"`
}

// Tried reports whether the given choice id has already been exercised.
func (s *GameState) Tried(choiceID string) bool {
	for _, id := range s.TriedChoices {
		if id == choiceID {
			return true
		}
	}
	return false
}
