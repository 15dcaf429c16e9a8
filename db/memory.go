package db

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fairplay/errs"
	"fairplay/state"
)

// Memory is an in-process repository. It backs tests, the simulator, and
// deployments started without DATABASE_URL.
type Memory struct {
	mu          sync.RWMutex
	commitments map[string]*memCommitment
	active      map[string]string // namespace -> commitment id
	rounds      map[roundKey]state.RoundRecord
	order       []roundKey
}

type memCommitment struct {
	row     state.CommitmentRow
	counter atomic.Uint64
}

type roundKey struct {
	commitmentID string
	sequence     uint64
}

// NewMemory creates an empty repository.
func NewMemory() *Memory {
	return &Memory{
		commitments: make(map[string]*memCommitment),
		active:      make(map[string]string),
		rounds:      make(map[roundKey]state.RoundRecord),
	}
}

func (m *memCommitment) snapshot() state.CommitmentRow {
	row := m.row
	row.SequenceCounter = m.counter.Load()
	return row
}

func (m *Memory) ActiveCommitment(ctx context.Context, namespace string) (state.CommitmentRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[namespace]
	if !ok {
		return state.CommitmentRow{}, errs.New(errs.CodeNotFound, "no active commitment for %q", namespace)
	}
	return m.commitments[id].snapshot(), nil
}

func (m *Memory) Commitment(ctx context.Context, id string) (state.CommitmentRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commitments[id]
	if !ok {
		return state.CommitmentRow{}, errs.New(errs.CodeNotFound, "commitment %s not found", id)
	}
	return c.snapshot(), nil
}

func (m *Memory) RetiredCommitments(ctx context.Context, namespace string, limit int) ([]state.CommitmentRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []state.CommitmentRow
	for _, c := range m.commitments {
		if c.row.Namespace == namespace && c.row.Status == state.StatusRetired {
			rows = append(rows, c.snapshot())
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].RetiredAt.After(*rows[j].RetiredAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *Memory) Rotate(ctx context.Context, previousID string, next state.CommitmentRow, retiredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, hasCurrent := m.active[next.Namespace]
	if previousID == "" {
		if hasCurrent {
			return errs.New(errs.CodeActivationConflict, "namespace %q already has active commitment %s", next.Namespace, current)
		}
	} else if !hasCurrent || current != previousID {
		return errs.New(errs.CodeStaleCommitment, "commitment %s is no longer active", previousID)
	}
	if _, exists := m.commitments[next.ID]; exists {
		return errs.New(errs.CodeActivationConflict, "commitment %s already exists", next.ID)
	}

	if previousID != "" {
		prev := m.commitments[previousID]
		at := retiredAt
		prev.row.Status = state.StatusRetired
		prev.row.RetiredAt = &at
	}

	c := &memCommitment{row: next}
	c.row.Status = state.StatusActive
	c.row.RetiredAt = nil
	c.counter.Store(next.SequenceCounter)
	m.commitments[next.ID] = c
	m.active[next.Namespace] = next.ID

	return nil
}

func (m *Memory) NextSequence(ctx context.Context, id string) (uint64, error) {
	// A read lock is enough: Rotate takes the write lock before flipping
	// status, so no increment can land on a retired commitment.
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commitments[id]
	if !ok {
		return 0, errs.New(errs.CodeNotFound, "commitment %s not found", id)
	}
	if c.row.Status != state.StatusActive {
		return 0, errs.New(errs.CodeStaleCommitment, "commitment %s is retired", id)
	}
	return c.counter.Add(1) - 1, nil
}

func (m *Memory) InsertRound(ctx context.Context, record state.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := roundKey{record.CommitmentID, record.SequenceNumber}
	if existing, ok := m.rounds[key]; ok {
		if existing.SameOutcome(record) {
			return nil
		}
		return errs.New(errs.CodeSequenceConflict, "round %s/%d already recorded with a different outcome", key.commitmentID, key.sequence)
	}

	m.rounds[key] = record
	m.order = append(m.order, key)
	return nil
}

func (m *Memory) Round(ctx context.Context, commitmentID string, sequence uint64) (state.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rounds[roundKey{commitmentID, sequence}]
	if !ok {
		return state.RoundRecord{}, errs.New(errs.CodeNotFound, "round %s/%d not found", commitmentID, sequence)
	}
	return r, nil
}

func (m *Memory) Rounds(ctx context.Context, namespace string, limit int) ([]state.RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []state.RoundRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		r := m.rounds[m.order[i]]
		if r.Namespace != namespace {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
