package models

import "time"

type NodeStatus string

const (
	NodeStatusPending    NodeStatus = "pending"
	NodeStatusScheduled  NodeStatus = "scheduled"
	NodeStatusInProgress NodeStatus = "in_progress"
	NodeStatusCompleted  NodeStatus = "completed"
	NodeStatusForfeited  NodeStatus = "forfeited"
)

// BracketBranch discriminates the sub-bracket a node belongs to.
// Non-knockout phases leave it as BranchNone.
type BracketBranch string

const (
	BranchNone        BracketBranch = ""
	BranchMain        BracketBranch = "main"
	BranchConsolation BracketBranch = "consolation"
	BranchGrandFinal  BracketBranch = "grand_final"
)

// BracketNode is one match slot in the competition's structural graph.
// Nodes form an arena addressed by (competition_id, id); forward links
// reference arena ids, never pointers, so the graph serializes flat.
type BracketNode struct {
	ID            int           `json:"id" db:"id"`
	CompetitionID int           `json:"competition_id" db:"competition_id"`
	Round         int           `json:"round" db:"round"`
	Position      int           `json:"position" db:"position"`
	Branch        BracketBranch `json:"branch,omitempty" db:"branch"`
	GroupLabel    *string       `json:"group_label,omitempty" db:"group_label"`
	SwissRound    *int          `json:"swiss_round,omitempty" db:"swiss_round"`

	SlotA *int `json:"slot_a,omitempty" db:"slot_a"`
	SlotB *int `json:"slot_b,omitempty" db:"slot_b"`

	Status   NodeStatus `json:"status" db:"status"`
	ScoreA   *int       `json:"score_a,omitempty" db:"score_a"`
	ScoreB   *int       `json:"score_b,omitempty" db:"score_b"`
	WinnerID *int       `json:"winner_id,omitempty" db:"winner_id"`
	LoserID  *int       `json:"loser_id,omitempty" db:"loser_id"`

	// Winner/loser advancement targets: arena node id plus slot (1 or 2).
	NextNodeID      *int `json:"next_node_id,omitempty" db:"next_node_id"`
	NextSlot        *int `json:"next_slot,omitempty" db:"next_slot"`
	LoserNextNodeID *int `json:"loser_next_node_id,omitempty" db:"loser_next_node_id"`
	LoserNextSlot   *int `json:"loser_next_slot,omitempty" db:"loser_next_slot"`

	Overtime        bool      `json:"overtime" db:"overtime"`
	DurationSeconds *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`
	GameRef         *string   `json:"game_ref,omitempty" db:"game_ref"`
	ForfeitReason   *string   `json:"forfeit_reason,omitempty" db:"forfeit_reason"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Terminal reports whether the node already carries a final result.
func (n *BracketNode) Terminal() bool {
	return n.Status == NodeStatusCompleted || n.Status == NodeStatusForfeited
}

// Schedulable reports whether both slots are filled and the node still
// awaits a result.
func (n *BracketNode) Schedulable() bool {
	return n.SlotA != nil && n.SlotB != nil && !n.Terminal()
}

// Bye reports whether the node was generated with a single occupied slot.
func (n *BracketNode) Bye() bool {
	return (n.SlotA == nil) != (n.SlotB == nil) && n.Terminal()
}

// HasEntrant reports whether the entrant occupies one of the node's slots.
func (n *BracketNode) HasEntrant(entrantID int) bool {
	return (n.SlotA != nil && *n.SlotA == entrantID) || (n.SlotB != nil && *n.SlotB == entrantID)
}
