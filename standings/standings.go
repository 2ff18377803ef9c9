// Package standings derives a strict total order over a competition's
// entrants. The same ordering serves live standings queries and the final
// position assignment at completion.
package standings

import (
	"math"
	"sort"

	"github.com/bracketlab/bracket-engine/models"
)

// Rank orders entrants best-first. Round robin and Swiss rank purely on the
// points chain; elimination formats rank by how deep an entrant survived
// (champion, final, semifinal, and so on down to the group stage), with the
// points chain breaking ties inside one severity level. The registration
// order is the terminal tiebreak, so the result never contains ties even
// when entrants are statistically identical.
func Rank(entrants []*models.Entrant, format models.CompetitionFormat, group *string) []*models.Entrant {
	ranked := make([]*models.Entrant, 0, len(entrants))
	for _, e := range entrants {
		if e.Status == models.EntrantPending || e.Status == models.EntrantRejected {
			continue
		}
		if group != nil && (e.GroupLabel == nil || *e.GroupLabel != *group) {
			continue
		}
		ranked = append(ranked, e)
	}

	bySeverity := format.IsKnockout() || format == models.FormatGroupThenKnockout
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j], bySeverity)
	})
	return ranked
}

func less(a, b *models.Entrant, bySeverity bool) bool {
	// Withdrawn entrants always sink to the bottom.
	if aw, bw := a.Status == models.EntrantWithdrawn, b.Status == models.EntrantWithdrawn; aw != bw {
		return bw
	}
	// Assigned final positions are authoritative.
	if a.FinalPosition != nil || b.FinalPosition != nil {
		if a.FinalPosition == nil {
			return false
		}
		if b.FinalPosition == nil {
			return true
		}
		return *a.FinalPosition < *b.FinalPosition
	}
	if bySeverity {
		if sa, sb := severity(a), severity(b); sa != sb {
			return sa > sb
		}
	}
	if a.CompetitionPoints != b.CompetitionPoints {
		return a.CompetitionPoints > b.CompetitionPoints
	}
	if a.PointDifferential != b.PointDifferential {
		return a.PointDifferential > b.PointDifferential
	}
	if a.PointsFor != b.PointsFor {
		return a.PointsFor > b.PointsFor
	}
	return a.RegOrder < b.RegOrder
}

// severity maps elimination depth to a comparable rank: still alive beats
// everything, then later rounds beat earlier ones, with 0 reserved for
// entrants who never left the group stage.
func severity(e *models.Entrant) int {
	if e.EliminationRound == nil {
		return math.MaxInt
	}
	return *e.EliminationRound
}

// Finalize walks the ranking once and writes sequential final positions,
// skipping entrants whose position is already set, so repeated finalization
// is a no-op. Returns the entrants assigned in this call.
func Finalize(comp *models.Competition) []*models.Entrant {
	ranked := Rank(comp.Entrants, comp.Format, nil)

	used := make(map[int]bool, len(ranked))
	for _, e := range ranked {
		if e.FinalPosition != nil {
			used[*e.FinalPosition] = true
		}
	}

	var assigned []*models.Entrant
	pos := 1
	for _, e := range ranked {
		if e.FinalPosition != nil {
			continue
		}
		for used[pos] {
			pos++
		}
		p := pos
		e.FinalPosition = &p
		used[p] = true
		assigned = append(assigned, e)
	}
	return assigned
}
