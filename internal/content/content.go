// Package content loads and validates the authored badge catalog. Badges
// are declarative YAML embedded in the binary; a malformed graph is a fatal
// configuration error surfaced at load, never at traversal time.
package content

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"resilience-sim/internal/model"
)

//go:embed badges/*.yaml
var badgeFS embed.FS

// Catalog is the loaded, validated set of badges. Immutable after Load.
type Catalog struct {
	badges []*model.Badge
	byID   map[string]*model.Badge
}

// Load parses every embedded badge file and validates each graph.
func Load() (*Catalog, error) {
	entries, err := badgeFS.ReadDir("badges")
	if err != nil {
		return nil, fmt.Errorf("read badge dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	c := &Catalog{byID: make(map[string]*model.Badge)}
	for _, name := range names {
		data, err := badgeFS.ReadFile("badges/" + name)
		if err != nil {
			return nil, fmt.Errorf("read badge %s: %w", name, err)
		}
		var badge model.Badge
		if err := yaml.Unmarshal(data, &badge); err != nil {
			return nil, fmt.Errorf("parse badge %s: %w", name, err)
		}
		if err := Validate(&badge); err != nil {
			return nil, fmt.Errorf("badge %s: %w", name, err)
		}
		if _, dup := c.byID[badge.ID]; dup {
			return nil, fmt.Errorf("badge %s: duplicate badge id %q", name, badge.ID)
		}
		c.badges = append(c.badges, &badge)
		c.byID[badge.ID] = &badge
	}

	if len(c.badges) == 0 {
		return nil, fmt.Errorf("no badges embedded")
	}
	return c, nil
}

// Get returns the badge with the given id.
func (c *Catalog) Get(id string) (*model.Badge, bool) {
	b, ok := c.byID[id]
	return b, ok
}

// List returns all badges in stable (file name) order.
func (c *Catalog) List() []*model.Badge {
	return c.badges
}

// Validate checks the full badge graph: structural integrity plus every rule
// table reference. Rule tables keyed on authored ids are easy to break with
// content edits, so misreferences must fail here.
func Validate(b *model.Badge) error {
	if b.ID == "" {
		return fmt.Errorf("missing badge id")
	}
	if b.Name == "" {
		return fmt.Errorf("missing badge name")
	}
	if len(b.Phases) == 0 {
		return fmt.Errorf("badge has no phases")
	}
	if b.Config.FollowerRange.Max <= b.Config.FollowerRange.Min {
		return fmt.Errorf("follower range max must exceed min")
	}
	if err := validateMeters(b.Config.StartMeters); err != nil {
		return fmt.Errorf("startMeters: %w", err)
	}
	if err := validateMeters(b.Config.CompletionMeters); err != nil {
		return fmt.Errorf("completionMeters: %w", err)
	}

	phaseChoices := make(map[string]map[string]bool, len(b.Phases))
	allChoices := make(map[string]bool)
	for i := range b.Phases {
		p := &b.Phases[i]
		if p.ID == "" {
			return fmt.Errorf("phase %d: missing id", i)
		}
		if _, dup := phaseChoices[p.ID]; dup {
			return fmt.Errorf("duplicate phase id %q", p.ID)
		}
		switch p.Type {
		case model.PhaseScenario, model.PhaseLesson, model.PhasePractice, model.PhaseCompletion:
		default:
			return fmt.Errorf("phase %s: unknown type %q", p.ID, p.Type)
		}
		if len(p.Steps) == 0 {
			return fmt.Errorf("phase %s: no steps", p.ID)
		}

		ids := make(map[string]bool)
		for _, ch := range p.Choices {
			if err := validateChoice(p.ID, ch, ids); err != nil {
				return err
			}
			allChoices[ch.ID] = true
		}
		stepIDs := make(map[string]bool)
		for j := range p.Steps {
			s := &p.Steps[j]
			if s.ID == "" {
				return fmt.Errorf("phase %s: step %d missing id", p.ID, j)
			}
			if stepIDs[s.ID] {
				return fmt.Errorf("phase %s: duplicate step id %q", p.ID, s.ID)
			}
			stepIDs[s.ID] = true
			for _, card := range s.Cards {
				if err := validateCard(p.ID, card); err != nil {
					return err
				}
			}
			for _, ch := range s.Choices {
				if err := validateChoice(p.ID, ch, ids); err != nil {
					return err
				}
				allChoices[ch.ID] = true
			}
			if s.RequiresChoiceToProgress && len(s.Choices) == 0 && len(p.Choices) == 0 {
				return fmt.Errorf("phase %s: step %s requires a choice but none are authored", p.ID, s.ID)
			}
		}
		phaseChoices[p.ID] = ids
	}

	for _, pair := range b.Rules.ComparisonPairs {
		first, ok := phaseChoices[pair.FirstPhase]
		if !ok {
			return fmt.Errorf("comparison pair references unknown phase %q", pair.FirstPhase)
		}
		second, ok := phaseChoices[pair.SecondPhase]
		if !ok {
			return fmt.Errorf("comparison pair references unknown phase %q", pair.SecondPhase)
		}
		if len(pair.Complement) != len(first) {
			return fmt.Errorf("comparison pair %s/%s: complement must map every first-phase choice", pair.FirstPhase, pair.SecondPhase)
		}
		for from, to := range pair.Complement {
			if !first[from] {
				return fmt.Errorf("comparison pair %s/%s: %q is not a choice of the first phase", pair.FirstPhase, pair.SecondPhase, from)
			}
			if !second[to] {
				return fmt.Errorf("comparison pair %s/%s: %q is not a choice of the second phase", pair.FirstPhase, pair.SecondPhase, to)
			}
		}
	}

	for _, oc := range b.Rules.OutcomeCards {
		if _, ok := phaseChoices[oc.Phase]; !ok {
			return fmt.Errorf("outcome card references unknown phase %q", oc.Phase)
		}
		if !allChoices[oc.Choice] {
			return fmt.Errorf("outcome card for phase %s references unknown choice %q", oc.Phase, oc.Choice)
		}
		if err := validateCard(oc.Phase, oc.Card); err != nil {
			return err
		}
	}

	return nil
}

func validateChoice(phaseID string, ch model.Choice, seen map[string]bool) error {
	if ch.ID == "" {
		return fmt.Errorf("phase %s: choice missing id", phaseID)
	}
	if seen[ch.ID] {
		return fmt.Errorf("phase %s: duplicate choice id %q", phaseID, ch.ID)
	}
	seen[ch.ID] = true
	if ch.Text == "" {
		return fmt.Errorf("phase %s: choice %s missing text", phaseID, ch.ID)
	}
	return nil
}

func validateCard(phaseID string, card model.Card) error {
	if card.ID == "" {
		return fmt.Errorf("phase %s: card missing id", phaseID)
	}
	switch card.Type {
	case model.CardPost, model.CardComment, model.CardReply, model.CardFeedback:
		return nil
	default:
		return fmt.Errorf("phase %s: card %s has unknown type %q", phaseID, card.ID, card.Type)
	}
}

func validateMeters(m model.Meters) error {
	if m.MentalHealth < 0 || m.MentalHealth > 100 {
		return fmt.Errorf("mentalHealth %d out of range", m.MentalHealth)
	}
	if m.CommunityTrust < 0 || m.CommunityTrust > 100 {
		return fmt.Errorf("communityTrust %d out of range", m.CommunityTrust)
	}
	return nil
}
