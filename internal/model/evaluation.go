package model

// Evaluation is the verdict for a freeform response: whether it qualifies as
// constructive, short feedback for the user, and a 1..10 score.
type Evaluation struct {
	IsPositive bool   `json:"isPositive"`
	Feedback   string `json:"feedback"`
	Score      int    `json:"score"`
}
