package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Store implements domain.StateStore on PostgreSQL. Settlements are applied
// in a single transaction; the balance bounds (non-negative, uint256 max)
// are enforced by check constraints and mapped back to domain errors.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ domain.StateStore = (*Store)(nil)

// Balance returns the balance for (account, asset), zero when the row does
// not exist.
func (s *Store) Balance(ctx context.Context, account common.Address, asset domain.AssetID) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM balances WHERE account = $1 AND asset = $2`,
		account.Hex(), asset.Hex(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get balance: %w", err)
	}
	return parseNumeric(raw)
}

// PutCondition stores a newly prepared condition.
func (s *Store) PutCondition(ctx context.Context, c domain.Condition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conditions (id, oracle, question_id, outcome_slots, prepared_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID.Hex(), c.Oracle.Hex(), c.QuestionID.Hex(), c.OutcomeSlots, c.PreparedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyPrepared
	}
	if err != nil {
		return fmt.Errorf("postgres: put condition %s: %w", c.ID.Hex(), err)
	}
	return nil
}

const conditionSelectCols = `id, oracle, question_id, outcome_slots, payouts::text[], prepared_at, resolved_at`

func scanCondition(row pgx.Row) (domain.Condition, error) {
	var c domain.Condition
	var id, oracle, questionID string
	var payouts []string

	err := row.Scan(&id, &oracle, &questionID, &c.OutcomeSlots, &payouts, &c.PreparedAt, &c.ResolvedAt)
	if err != nil {
		return domain.Condition{}, err
	}
	c.ID = common.HexToHash(id)
	c.Oracle = common.HexToAddress(oracle)
	c.QuestionID = common.HexToHash(questionID)
	for _, p := range payouts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return domain.Condition{}, fmt.Errorf("payout entry %q: %w", p, err)
		}
		c.Payouts = append(c.Payouts, v)
	}
	return c, nil
}

// GetCondition returns the condition with the given ID.
func (s *Store) GetCondition(ctx context.Context, id domain.ConditionID) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionSelectCols+` FROM conditions WHERE id = $1`, id.Hex())

	c, err := scanCondition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Condition{}, domain.ErrUnknownCondition
	}
	if err != nil {
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id.Hex(), err)
	}
	return c, nil
}

// GetConditionByQuestion returns the condition prepared for questionID.
func (s *Store) GetConditionByQuestion(ctx context.Context, questionID common.Hash) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionSelectCols+` FROM conditions WHERE question_id = $1`, questionID.Hex())

	c, err := scanCondition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Condition{}, domain.ErrUnknownCondition
	}
	if err != nil {
		return domain.Condition{}, fmt.Errorf("postgres: get condition by question %s: %w", questionID.Hex(), err)
	}
	return c, nil
}

// SetPayouts records the payout vector exactly once.
func (s *Store) SetPayouts(ctx context.Context, id domain.ConditionID, payouts []uint64, at time.Time) error {
	// uint64 payouts overflow BIGINT; ship them as decimal strings.
	vec := make([]string, len(payouts))
	for i, p := range payouts {
		vec[i] = strconv.FormatUint(p, 10)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE conditions SET payouts = $2::numeric[], resolved_at = $3
		 WHERE id = $1 AND resolved_at IS NULL`,
		id.Hex(), vec, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: set payouts %s: %w", id.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetCondition(ctx, id); err != nil {
			return err
		}
		return domain.ErrAlreadyResolved
	}
	return nil
}

// PutPair registers the complementary yes/no positions for a condition.
func (s *Store) PutPair(ctx context.Context, p domain.PositionPair) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO position_pairs (condition_id, yes_token, no_token) VALUES ($1, $2, $3)`,
		p.ConditionID.Hex(), p.Yes.Hex(), p.No.Hex(),
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyRegistered
	}
	if err != nil {
		return fmt.Errorf("postgres: put pair %s: %w", p.ConditionID.Hex(), err)
	}
	return nil
}

// PairByToken returns the pair containing the given position token.
func (s *Store) PairByToken(ctx context.Context, token domain.PositionID) (domain.PositionPair, error) {
	var conditionID, yes, no string
	err := s.pool.QueryRow(ctx,
		`SELECT condition_id, yes_token, no_token FROM position_pairs
		 WHERE yes_token = $1 OR no_token = $1`,
		token.Hex(),
	).Scan(&conditionID, &yes, &no)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PositionPair{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PositionPair{}, fmt.Errorf("postgres: pair by token: %w", err)
	}
	return domain.PositionPair{
		ConditionID: common.HexToHash(conditionID),
		Yes:         common.HexToHash(yes),
		No:          common.HexToHash(no),
	}, nil
}

// Watermark returns the minimum valid salt for the key, zero when never
// advanced.
func (s *Store) Watermark(ctx context.Context, key domain.WatermarkKey) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT min_salt::text FROM watermarks WHERE maker = $1 AND token_id = $2 AND side = $3`,
		key.Maker.Hex(), key.TokenID.Hex(), string(key.Side),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get watermark: %w", err)
	}
	return parseNumeric(raw)
}

// Filled returns the cumulative filled quantity for an order digest.
func (s *Store) Filled(ctx context.Context, orderDigest common.Hash) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT filled::text FROM fills WHERE order_digest = $1`, orderDigest.Hex(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get fill: %w", err)
	}
	return parseNumeric(raw)
}

// ApplySettlement applies all deltas, watermark advances, and fill updates
// of one settlement in a single transaction, then records the settlement in
// the log. The balance check constraints veto the whole batch on an
// insufficient debit or a uint256 overflow.
func (s *Store) ApplySettlement(ctx context.Context, settlement domain.Settlement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range settlement.Deltas {
		_, err := tx.Exec(ctx,
			`INSERT INTO balances (account, asset, balance, updated_at)
			 VALUES ($1, $2, $3::numeric, NOW())
			 ON CONFLICT (account, asset)
			 DO UPDATE SET balance = balances.balance + EXCLUDED.balance, updated_at = NOW()`,
			d.Account.Hex(), d.Asset.Hex(), d.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: apply delta: %w", mapBalanceError(err))
		}
	}

	for _, w := range settlement.Watermarks {
		_, err := tx.Exec(ctx,
			`INSERT INTO watermarks (maker, token_id, side, min_salt, updated_at)
			 VALUES ($1, $2, $3, $4::numeric, NOW())
			 ON CONFLICT (maker, token_id, side)
			 DO UPDATE SET min_salt = GREATEST(watermarks.min_salt, EXCLUDED.min_salt), updated_at = NOW()`,
			w.Key.Maker.Hex(), w.Key.TokenID.Hex(), string(w.Key.Side), w.MinSalt.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: advance watermark: %w", err)
		}
	}

	for _, f := range settlement.Fills {
		_, err := tx.Exec(ctx,
			`INSERT INTO fills (order_digest, filled, updated_at)
			 VALUES ($1, $2::numeric, NOW())
			 ON CONFLICT (order_digest)
			 DO UPDATE SET filled = EXCLUDED.filled, updated_at = NOW()`,
			f.OrderDigest.Hex(), f.Filled.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: record fill: %w", err)
		}
	}

	body, err := json.Marshal(settlement)
	if err != nil {
		return fmt.Errorf("postgres: marshal settlement %s: %w", settlement.ID, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO settlements (id, kind, body, created_at) VALUES ($1, $2, $3, $4)`,
		settlement.ID, string(settlement.Kind), body, settlement.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: record settlement %s: %w", settlement.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement %s: %w", settlement.ID, err)
	}
	return nil
}

// ListSettlementsBefore returns settlements created strictly before the
// cutoff, oldest first.
func (s *Store) ListSettlementsBefore(ctx context.Context, before time.Time, limit int) ([]domain.Settlement, error) {
	query := `SELECT body FROM settlements WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		var settlement domain.Settlement
		if err := json.Unmarshal(body, &settlement); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal settlement: %w", err)
		}
		out = append(out, settlement)
	}
	return out, rows.Err()
}

func parseNumeric(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse numeric %q", raw)
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// mapBalanceError translates balance check-constraint violations into the
// domain errors the callers branch on.
func mapBalanceError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23514" {
		return err
	}
	switch pgErr.ConstraintName {
	case "balances_non_negative":
		return domain.ErrInsufficientBalance
	case "balances_uint256":
		return domain.ErrOverflow
	default:
		return err
	}
}
