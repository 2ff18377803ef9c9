package models

import "time"

type EntrantStatus string

const (
	EntrantPending   EntrantStatus = "pending"
	EntrantApproved  EntrantStatus = "approved"
	EntrantRejected  EntrantStatus = "rejected"
	EntrantWithdrawn EntrantStatus = "withdrawn"
)

// Entrant is one team inside one competition. Identity (who the team is)
// lives in the registration subsystem; TeamID is an opaque back-reference.
// All aggregate fields are written exclusively by the progression engine.
type Entrant struct {
	ID            int           `json:"id" db:"id"`
	CompetitionID int           `json:"competition_id" db:"competition_id"`
	TeamID        int           `json:"team_id" db:"team_id"`
	Status        EntrantStatus `json:"status" db:"status"`
	Seed          *int          `json:"seed,omitempty" db:"seed"`
	GroupLabel    *string       `json:"group_label,omitempty" db:"group_label"`

	Wins              int `json:"wins" db:"wins"`
	Losses            int `json:"losses" db:"losses"`
	Draws             int `json:"draws" db:"draws"`
	PointsFor         int `json:"points_for" db:"points_for"`
	PointsAgainst     int `json:"points_against" db:"points_against"`
	CompetitionPoints int `json:"competition_points" db:"competition_points"`
	PointDifferential int `json:"point_differential" db:"point_differential"`

	// EliminationRound records how deep the entrant survived before being
	// knocked out; higher means further. Set once, never cleared.
	EliminationRound *int `json:"elimination_round,omitempty" db:"elimination_round"`
	// FinalPosition is assigned exactly once when the competition completes.
	FinalPosition *int `json:"final_position,omitempty" db:"final_position"`

	// RegOrder is the registration sequence inside the competition and is
	// the terminal tiebreak, guaranteeing a strict total order in standings.
	RegOrder  int       `json:"reg_order" db:"reg_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (e *Entrant) SeedValue() int {
	if e.Seed == nil {
		return 0
	}
	return *e.Seed
}
