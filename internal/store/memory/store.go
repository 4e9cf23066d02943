// Package memory implements domain.StateStore as an in-process store guarded
// by a single mutex. It is the default backend for single-node deployments
// and the test harness; the postgres store realizes the same layout durably.
package memory

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

type balanceKey struct {
	account common.Address
	asset   domain.AssetID
}

// Store holds the complete settlement state in memory. All public
// operations are serialized on one mutex, which trivially satisfies the
// atomicity and conservation requirements of ApplySettlement.
type Store struct {
	mu sync.Mutex

	balances    map[balanceKey]*big.Int
	conditions  map[domain.ConditionID]domain.Condition
	byQuestion  map[common.Hash]domain.ConditionID
	pairs       map[domain.ConditionID]domain.PositionPair
	pairByToken map[domain.PositionID]domain.PositionPair
	watermarks  map[domain.WatermarkKey]*big.Int
	fills       map[common.Hash]*big.Int
	settlements []domain.Settlement
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		balances:    make(map[balanceKey]*big.Int),
		conditions:  make(map[domain.ConditionID]domain.Condition),
		byQuestion:  make(map[common.Hash]domain.ConditionID),
		pairs:       make(map[domain.ConditionID]domain.PositionPair),
		pairByToken: make(map[domain.PositionID]domain.PositionPair),
		watermarks:  make(map[domain.WatermarkKey]*big.Int),
		fills:       make(map[common.Hash]*big.Int),
	}
}

// Balance returns the balance for (account, asset), zero when unseen.
func (s *Store) Balance(_ context.Context, account common.Address, asset domain.AssetID) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.balances[balanceKey{account, asset}]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

// PutCondition stores a newly prepared condition.
func (s *Store) PutCondition(_ context.Context, c domain.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conditions[c.ID]; ok {
		return domain.ErrAlreadyPrepared
	}
	s.conditions[c.ID] = copyCondition(c)
	s.byQuestion[c.QuestionID] = c.ID
	return nil
}

// GetCondition returns the condition with the given ID.
func (s *Store) GetCondition(_ context.Context, id domain.ConditionID) (domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conditions[id]
	if !ok {
		return domain.Condition{}, domain.ErrUnknownCondition
	}
	return copyCondition(c), nil
}

// GetConditionByQuestion returns the condition prepared for a question ID.
func (s *Store) GetConditionByQuestion(_ context.Context, questionID common.Hash) (domain.Condition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byQuestion[questionID]
	if !ok {
		return domain.Condition{}, domain.ErrUnknownCondition
	}
	return copyCondition(s.conditions[id]), nil
}

// SetPayouts records the payout vector for a condition exactly once.
func (s *Store) SetPayouts(_ context.Context, id domain.ConditionID, payouts []uint64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conditions[id]
	if !ok {
		return domain.ErrUnknownCondition
	}
	if c.Resolved() {
		return domain.ErrAlreadyResolved
	}

	c.Payouts = append([]uint64(nil), payouts...)
	resolvedAt := at
	c.ResolvedAt = &resolvedAt
	s.conditions[id] = c
	return nil
}

// PutPair registers the yes/no position pair for a condition.
func (s *Store) PutPair(_ context.Context, p domain.PositionPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pairs[p.ConditionID]; ok {
		return domain.ErrAlreadyRegistered
	}
	s.pairs[p.ConditionID] = p
	s.pairByToken[p.Yes] = p
	s.pairByToken[p.No] = p
	return nil
}

// PairByToken returns the pair containing the given position token.
func (s *Store) PairByToken(_ context.Context, token domain.PositionID) (domain.PositionPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pairByToken[token]
	if !ok {
		return domain.PositionPair{}, domain.ErrNotFound
	}
	return p, nil
}

// Watermark returns the minimum valid salt for the key, zero if never set.
func (s *Store) Watermark(_ context.Context, key domain.WatermarkKey) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.watermarks[key]; ok {
		return new(big.Int).Set(w), nil
	}
	return new(big.Int), nil
}

// Filled returns the cumulative filled quantity for an order digest.
func (s *Store) Filled(_ context.Context, orderDigest common.Hash) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.fills[orderDigest]; ok {
		return new(big.Int).Set(f), nil
	}
	return new(big.Int), nil
}

// ListSettlementsBefore returns settlements created before the cutoff,
// oldest first.
func (s *Store) ListSettlementsBefore(_ context.Context, before time.Time, limit int) ([]domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Settlement
	for _, st := range s.settlements {
		if st.CreatedAt.Before(before) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ApplySettlement applies every delta, watermark advance, and fill update
// atomically. Deltas are staged against a scratch view first; the committed
// state never reflects a partially-applied settlement.
func (s *Store) ApplySettlement(_ context.Context, settlement domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stage: compute the post-settlement balance for every touched key.
	staged := make(map[balanceKey]*big.Int, len(settlement.Deltas))
	for _, d := range settlement.Deltas {
		key := balanceKey{d.Account, d.Asset}
		cur, ok := staged[key]
		if !ok {
			cur = new(big.Int)
			if b, exists := s.balances[key]; exists {
				cur.Set(b)
			}
		}
		next := new(big.Int).Add(cur, d.Amount)
		if next.Sign() < 0 {
			return domain.ErrInsufficientBalance
		}
		if next.Cmp(domain.MaxUint256) > 0 {
			return domain.ErrOverflow
		}
		staged[key] = next
	}

	// Commit.
	for key, next := range staged {
		s.balances[key] = next
	}
	for _, w := range settlement.Watermarks {
		cur, ok := s.watermarks[w.Key]
		if !ok || cur.Cmp(w.MinSalt) < 0 {
			s.watermarks[w.Key] = new(big.Int).Set(w.MinSalt)
		}
	}
	for _, f := range settlement.Fills {
		s.fills[f.OrderDigest] = new(big.Int).Set(f.Filled)
	}
	s.settlements = append(s.settlements, settlement)
	return nil
}

func copyCondition(c domain.Condition) domain.Condition {
	out := c
	if c.Payouts != nil {
		out.Payouts = append([]uint64(nil), c.Payouts...)
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// Compile-time interface check.
var _ domain.StateStore = (*Store)(nil)
