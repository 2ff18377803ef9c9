package models

import "time"

// CompetitionFormat enumerates the supported competition topologies.
type CompetitionFormat string

const (
	FormatSingleElimination CompetitionFormat = "single_elimination"
	FormatDoubleElimination CompetitionFormat = "double_elimination"
	FormatRoundRobin        CompetitionFormat = "round_robin"
	FormatSwissSystem       CompetitionFormat = "swiss_system"
	FormatGroupThenKnockout CompetitionFormat = "group_then_knockout"
)

func (f CompetitionFormat) Valid() bool {
	switch f {
	case FormatSingleElimination, FormatDoubleElimination, FormatRoundRobin,
		FormatSwissSystem, FormatGroupThenKnockout:
		return true
	}
	return false
}

// IsKnockout reports whether every loss in the format's main phase is an elimination.
func (f CompetitionFormat) IsKnockout() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}

type CompetitionStatus string

const (
	StatusDraft              CompetitionStatus = "draft"
	StatusRegistrationOpen   CompetitionStatus = "registration_open"
	StatusRegistrationClosed CompetitionStatus = "registration_closed"
	StatusInProgress         CompetitionStatus = "in_progress"
	StatusCompleted          CompetitionStatus = "completed"
	StatusCanceled           CompetitionStatus = "canceled"
)

// PointsRule defines the competition points awarded per game outcome.
// Only round robin and Swiss rankings consume these, but aggregates are
// maintained uniformly for all formats.
type PointsRule struct {
	Win  int `json:"win"`
	Draw int `json:"draw"`
	Loss int `json:"loss"`
}

func DefaultPointsRule() PointsRule {
	return PointsRule{Win: 3, Draw: 1, Loss: 0}
}

type Competition struct {
	ID                 int               `json:"id" db:"id"`
	Name               string            `json:"name" db:"name"`
	Format             CompetitionFormat `json:"format" db:"format"`
	Status             CompetitionStatus `json:"status" db:"status"`
	OrganizerID        int               `json:"organizer_id" db:"organizer_id"`
	MinEntrants        int               `json:"min_entrants" db:"min_entrants"`
	MaxEntrants        int               `json:"max_entrants" db:"max_entrants"`
	GroupCount         int               `json:"group_count" db:"group_count"`
	KnockoutQualifiers int               `json:"knockout_qualifiers" db:"knockout_qualifiers"`
	Points             PointsRule        `json:"points_rule" db:"-"`
	GameDurationMin    int               `json:"game_duration_minutes" db:"game_duration_minutes"`
	RegistrationEnd    time.Time         `json:"registration_end" db:"registration_end"`
	// Halted is set when a structural-integrity violation is detected;
	// a halted competition accepts no further results until cleared manually.
	Halted    bool      `json:"halted" db:"halted"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Loaded relations, populated by the service layer.
	Entrants []*Entrant     `json:"entrants,omitempty" db:"-"`
	Nodes    []*BracketNode `json:"nodes,omitempty" db:"-"`
}

// NodeByID resolves a node from the loaded arena. Nil when absent.
func (c *Competition) NodeByID(id int) *BracketNode {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (c *Competition) EntrantByID(id int) *Entrant {
	for _, e := range c.Entrants {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// NextNodeID returns the next free node id in the competition's arena.
// Node ids are assigned by the engine, sequential per competition.
func (c *Competition) NextNodeID() int {
	max := 0
	for _, n := range c.Nodes {
		if n.ID > max {
			max = n.ID
		}
	}
	return max + 1
}

// ApprovedEntrants returns entrants eligible for bracket generation.
func (c *Competition) ApprovedEntrants() []*Entrant {
	out := make([]*Entrant, 0, len(c.Entrants))
	for _, e := range c.Entrants {
		if e.Status == EntrantApproved {
			out = append(out, e)
		}
	}
	return out
}
