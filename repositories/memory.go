package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bracketlab/bracket-engine/models"
)

// MemoryStore is an in-memory implementation of every repository plus the
// TxRunner, backing unit tests and demo mode. Mutations copy values in and
// reads copy values out, so callers never share state with the store. The
// runner serializes units of work under one mutex but does not roll back on
// failure; the engine's competition lock already serializes all mutation of
// one competition, and demo mode tolerates the weaker guarantee.
type MemoryStore struct {
	mu            sync.RWMutex
	competitions  map[int]*models.Competition
	entrants      map[int]*models.Entrant
	nodes         map[int]map[int]*models.BracketNode
	nextCompID    int
	nextEntrantID int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		competitions:  make(map[int]*models.Competition),
		entrants:      make(map[int]*models.Entrant),
		nodes:         make(map[int]map[int]*models.BracketNode),
		nextCompID:    1,
		nextEntrantID: 1,
	}
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	return fn(nil)
}

func (m *MemoryStore) Create(ctx context.Context, _ SQLExecutor, c *models.Competition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextCompID
	m.nextCompID++
	c.CreatedAt = time.Now()
	stored := *c
	stored.Entrants = nil
	stored.Nodes = nil
	m.competitions[c.ID] = &stored
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, _ SQLExecutor, id int) (*models.Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitions[id]
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *MemoryStore) List(ctx context.Context, _ SQLExecutor, filter ListCompetitionsFilter) ([]*models.Competition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Competition, 0, len(m.competitions))
	for _, c := range m.competitions {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Format != nil && c.Format != *filter.Format {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Competition{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, _ SQLExecutor, id int, status models.CompetitionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitions[id]
	if !ok {
		return ErrCompetitionNotFound
	}
	c.Status = status
	return nil
}

func (m *MemoryStore) SetHalted(ctx context.Context, _ SQLExecutor, id int, halted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitions[id]
	if !ok {
		return ErrCompetitionNotFound
	}
	c.Halted = halted
	return nil
}

// Entrants returns the store's entrant repository view.
func (m *MemoryStore) Entrants() EntrantRepository { return (*memoryEntrants)(m) }

// Nodes returns the store's node repository view.
func (m *MemoryStore) Nodes() NodeRepository { return (*memoryNodes)(m) }

// Competitions returns the store's competition repository view.
func (m *MemoryStore) Competitions() CompetitionRepository { return m }

type memoryEntrants MemoryStore

func (m *memoryEntrants) Create(ctx context.Context, _ SQLExecutor, e *models.Entrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.competitions[e.CompetitionID]; !ok {
		return ErrCompetitionNotFound
	}
	for _, existing := range m.entrants {
		if existing.CompetitionID == e.CompetitionID && e.Seed != nil &&
			existing.Seed != nil && *existing.Seed == *e.Seed {
			return ErrSeedConflict
		}
	}
	e.ID = m.nextEntrantID
	m.nextEntrantID++
	order := 0
	for _, existing := range m.entrants {
		if existing.CompetitionID == e.CompetitionID && existing.RegOrder > order {
			order = existing.RegOrder
		}
	}
	e.RegOrder = order + 1
	e.CreatedAt = time.Now()
	copied := *e
	m.entrants[e.ID] = &copied
	return nil
}

func (m *memoryEntrants) GetByID(ctx context.Context, _ SQLExecutor, id int) (*models.Entrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entrants[id]
	if !ok {
		return nil, ErrEntrantNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memoryEntrants) ListByCompetition(ctx context.Context, _ SQLExecutor, competitionID int) ([]*models.Entrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Entrant, 0)
	for _, e := range m.entrants {
		if e.CompetitionID == competitionID {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegOrder < out[j].RegOrder })
	return out, nil
}

func (m *memoryEntrants) UpdateStatus(ctx context.Context, _ SQLExecutor, id int, status models.EntrantStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entrants[id]
	if !ok {
		return ErrEntrantNotFound
	}
	e.Status = status
	return nil
}

func (m *memoryEntrants) UpdateGrouping(ctx context.Context, _ SQLExecutor, in *models.Entrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entrants[in.ID]
	if !ok {
		return ErrEntrantNotFound
	}
	e.Seed = in.Seed
	e.GroupLabel = in.GroupLabel
	return nil
}

func (m *memoryEntrants) UpdateProgress(ctx context.Context, _ SQLExecutor, in *models.Entrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entrants[in.ID]
	if !ok {
		return ErrEntrantNotFound
	}
	e.Wins, e.Losses, e.Draws = in.Wins, in.Losses, in.Draws
	e.PointsFor, e.PointsAgainst = in.PointsFor, in.PointsAgainst
	e.CompetitionPoints, e.PointDifferential = in.CompetitionPoints, in.PointDifferential
	e.EliminationRound = in.EliminationRound
	e.FinalPosition = in.FinalPosition
	e.Status = in.Status
	return nil
}

type memoryNodes MemoryStore

func (m *memoryNodes) CreateBatch(ctx context.Context, _ SQLExecutor, nodes []*models.BracketNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		arena, ok := m.nodes[n.CompetitionID]
		if !ok {
			arena = make(map[int]*models.BracketNode)
			m.nodes[n.CompetitionID] = arena
		}
		n.CreatedAt = time.Now()
		copied := *n
		arena[n.ID] = &copied
	}
	return nil
}

func (m *memoryNodes) GetByID(ctx context.Context, _ SQLExecutor, competitionID, nodeID int) (*models.BracketNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[competitionID][nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *memoryNodes) ListByCompetition(ctx context.Context, _ SQLExecutor, competitionID int) ([]*models.BracketNode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.BracketNode, 0, len(m.nodes[competitionID]))
	for _, n := range m.nodes[competitionID] {
		copied := *n
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryNodes) ListSchedulable(ctx context.Context, _ SQLExecutor, competitionID, limit int) ([]*models.BracketNode, error) {
	all, err := m.ListByCompetition(ctx, nil, competitionID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.BracketNode, 0, limit)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Round != all[j].Round {
			return all[i].Round < all[j].Round
		}
		return all[i].Position < all[j].Position
	})
	for _, n := range all {
		if n.Schedulable() && n.Status != models.NodeStatusInProgress {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memoryNodes) UpdateResult(ctx context.Context, _ SQLExecutor, in *models.BracketNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[in.CompetitionID][in.ID]
	if !ok {
		return ErrNodeNotFound
	}
	n.ScoreA, n.ScoreB = in.ScoreA, in.ScoreB
	n.Status = in.Status
	n.WinnerID, n.LoserID = in.WinnerID, in.LoserID
	n.Overtime = in.Overtime
	n.DurationSeconds = in.DurationSeconds
	n.GameRef = in.GameRef
	n.ForfeitReason = in.ForfeitReason
	return nil
}

func (m *memoryNodes) UpdateSlots(ctx context.Context, _ SQLExecutor, in *models.BracketNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[in.CompetitionID][in.ID]
	if !ok {
		return ErrNodeNotFound
	}
	n.SlotA, n.SlotB = in.SlotA, in.SlotB
	n.Status = in.Status
	return nil
}

func (m *memoryNodes) DeleteByCompetition(ctx context.Context, _ SQLExecutor, competitionID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, competitionID)
	return nil
}
