package brackets

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/bracketlab/bracket-engine/models"
)

// GenerateParams carries everything a generator needs. Entrants must be
// approved and seeded; the slice is not mutated beyond group assignment.
type GenerateParams struct {
	Competition *models.Competition
	Entrants    []*models.Entrant
}

// Generator turns a seeded entrant list into the initial bracket graph for
// one format. Generation is deterministic: identical input yields a
// structurally identical arena, so regenerating before start is a wholesale
// replacement, never a merge.
type Generator interface {
	Generate(ctx context.Context, params GenerateParams) ([]*models.BracketNode, error)
	Name() string
}

// ForFormat selects the generator for a competition format once, at
// competition creation or generation time. There is no per-call format
// re-dispatch anywhere else.
func ForFormat(format models.CompetitionFormat) (Generator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.FormatSwissSystem:
		return NewSwissGenerator(), nil
	case models.FormatGroupThenKnockout:
		return NewGroupKnockoutGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported competition format %q", format)
	}
}

// EnsureSeeds assigns sequential seeds by registration order to any entrant
// that still lacks one, preserving seeds already set. Returns the entrants
// sorted by seed.
func EnsureSeeds(entrants []*models.Entrant) []*models.Entrant {
	sorted := make([]*models.Entrant, len(entrants))
	copy(sorted, entrants)

	taken := make(map[int]bool, len(sorted))
	for _, e := range sorted {
		if e.Seed != nil {
			taken[*e.Seed] = true
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RegOrder < sorted[j].RegOrder })
	next := 1
	for _, e := range sorted {
		if e.Seed != nil {
			continue
		}
		for taken[next] {
			next++
		}
		seed := next
		e.Seed = &seed
		taken[seed] = true
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SeedValue() < sorted[j].SeedValue() })
	return sorted
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// SwissRoundCount is the total number of Swiss rounds for n entrants.
func SwissRoundCount(n int) int {
	if n < 2 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// seedOrder returns the round-1 slot order for standard bracket seeding of a
// full bracket: 1 vs size, 2 vs size-1, and so on, arranged so the top two
// seeds can only meet in the final.
func seedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		next := make([]int, 0, len(order)*2)
		m := len(order)*2 + 1
		for _, s := range order {
			next = append(next, s, m-s)
		}
		order = next
	}
	return order
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
