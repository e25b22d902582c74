/*

This file contains the postgres-backed ledger. One ledger transaction maps onto one
serializable SQL transaction, so a trade's state mutation, native-coin settlement and
analytics event commit or vanish together.

*/

package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/curveforge/curved/internal/logger"
	"github.com/curveforge/curved/internal/types"
)

// PostgresStore is a Store over a postgres connection pool.
type PostgresStore struct {
	db     *sql.DB
	gate   gate
	logger zerolog.Logger
}

// NewPostgresStore wraps an open connection pool, authorizing the given writers.
func NewPostgresStore(db *sql.DB, writers []string) *PostgresStore {
	return &PostgresStore{
		db:     db,
		gate:   newGate(writers),
		logger: logger.GetForComponent("ledger"),
	}
}

func (p *PostgresStore) Begin(ctx context.Context, actor string) (Tx, error) {
	sqlTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	return &pgTx{store: p, actor: actor, tx: sqlTx}, nil
}

func (p *PostgresStore) ReadRuntime(ctx context.Context, token types.Address) (types.RuntimeState, error) {
	return scanRuntime(p.db.QueryRowContext(ctx, runtimeQuery+` WHERE token = $1`, token), token)
}

func (p *PostgresStore) ReadProfile(ctx context.Context, token types.Address) (types.TokenProfile, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT profile FROM token_profiles WHERE token = $1`, token).Scan(&raw)
	if err == sql.ErrNoRows {
		return types.TokenProfile{}, ErrTokenUnknown
	}
	if err != nil {
		return types.TokenProfile{}, fmt.Errorf("failed to read token profile: %w", err)
	}
	var profile types.TokenProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return types.TokenProfile{}, fmt.Errorf("failed to decode token profile: %w", err)
	}
	return profile, nil
}

func (p *PostgresStore) RecentEvents(ctx context.Context, limit int) ([]types.MarketEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, kind, token, actor, side, eth_amount, token_amount,
		       platform_fee, dev_fee, event_timestamp
		FROM market_events
		ORDER BY event_timestamp DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query market events: %w", err)
	}
	defer rows.Close()

	var events []types.MarketEvent
	for rows.Next() {
		var ev types.MarketEvent
		var eth, tok, pf, df string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Token, &ev.Actor, &ev.Side,
			&eth, &tok, &pf, &df, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan market event: %w", err)
		}
		if ev.EthAmount, err = parseNumeric(eth); err != nil {
			return nil, err
		}
		if ev.TokenAmount, err = parseNumeric(tok); err != nil {
			return nil, err
		}
		if ev.PlatformFee, err = parseNumeric(pf); err != nil {
			return nil, err
		}
		if ev.DevFee, err = parseNumeric(df); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

const runtimeQuery = `
	SELECT token, eth_pool, circulating_supply, graduated,
	       start_time, limits_start, real_token, lp_address, claim_mode
	FROM runtime_state`

type rowScanner interface {
	Scan(dest ...any) error
}

func parseNumeric(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric amount in ledger: %q", s)
	}
	return v, nil
}

func scanRuntime(row rowScanner, token types.Address) (types.RuntimeState, error) {
	var s types.RuntimeState
	var pool, circulating string
	err := row.Scan(&s.Token, &pool, &circulating, &s.Graduated,
		&s.StartTime, &s.LimitsStart, &s.RealToken, &s.LPAddress, &s.ClaimMode)
	if err == sql.ErrNoRows {
		return types.RuntimeState{}, ErrTokenUnknown
	}
	if err != nil {
		return types.RuntimeState{}, fmt.Errorf("failed to read runtime state for %s: %w", token, err)
	}
	if s.EthPool, err = parseNumeric(pool); err != nil {
		return types.RuntimeState{}, err
	}
	if s.CirculatingSupply, err = parseNumeric(circulating); err != nil {
		return types.RuntimeState{}, err
	}
	return s, nil
}

type pgTx struct {
	store *PostgresStore
	actor string
	tx    *sql.Tx
	done  bool
}

func (t *pgTx) authorizeWrite() error {
	if t.done {
		return ErrTxDone
	}
	return t.store.gate.authorize(t.actor)
}

func (t *pgTx) Profile(token types.Address) (types.TokenProfile, error) {
	var raw []byte
	err := t.tx.QueryRow(`SELECT profile FROM token_profiles WHERE token = $1`, token).Scan(&raw)
	if err == sql.ErrNoRows {
		return types.TokenProfile{}, ErrTokenUnknown
	}
	if err != nil {
		return types.TokenProfile{}, fmt.Errorf("failed to read token profile: %w", err)
	}
	var profile types.TokenProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return types.TokenProfile{}, fmt.Errorf("failed to decode token profile: %w", err)
	}
	return profile, nil
}

func (t *pgTx) Runtime(token types.Address) (types.RuntimeState, error) {
	return scanRuntime(t.tx.QueryRow(runtimeQuery+` WHERE token = $1 FOR UPDATE`, token), token)
}

func (t *pgTx) HolderBalance(token, holder types.Address) (sdkmath.Int, error) {
	var balance string
	err := t.tx.QueryRow(
		`SELECT balance FROM holder_balances WHERE token = $1 AND holder = $2`,
		token, holder).Scan(&balance)
	if err == sql.ErrNoRows {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to read holder balance: %w", err)
	}
	return parseNumeric(balance)
}

func (t *pgTx) Holders(token types.Address) ([]types.Address, error) {
	rows, err := t.tx.Query(
		`SELECT holder FROM holder_balances WHERE token = $1 ORDER BY position`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list holders: %w", err)
	}
	defer rows.Close()

	var holders []types.Address
	for rows.Next() {
		var h types.Address
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan holder: %w", err)
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

func (t *pgTx) NativeBalance(account types.Address) (sdkmath.Int, error) {
	var balance string
	err := t.tx.QueryRow(
		`SELECT balance FROM native_balances WHERE account = $1`, account).Scan(&balance)
	if err == sql.ErrNoRows {
		return sdkmath.ZeroInt(), nil
	}
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("failed to read native balance: %w", err)
	}
	return parseNumeric(balance)
}

func (t *pgTx) Claimed(token, holder types.Address) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM claims WHERE token = $1 AND holder = $2)`,
		token, holder).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to read claim state: %w", err)
	}
	return exists, nil
}

func (t *pgTx) ClaimCursor(token types.Address) (int, error) {
	var cursor int
	err := t.tx.QueryRow(
		`SELECT cursor_position FROM claim_cursors WHERE token = $1`, token).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read claim cursor: %w", err)
	}
	return cursor, nil
}

func (t *pgTx) PutProfile(p types.TokenProfile) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode token profile: %w", err)
	}
	res, err := t.tx.Exec(`
		INSERT INTO token_profiles (token, profile) VALUES ($1, $2)
		ON CONFLICT (token) DO NOTHING`, p.Token, raw)
	if err != nil {
		return fmt.Errorf("failed to insert token profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check profile insert: %w", err)
	}
	if affected == 0 {
		return ErrTokenExists
	}
	return nil
}

func (t *pgTx) PutRuntime(s types.RuntimeState) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	profile, err := t.Profile(s.Token)
	if err != nil {
		return err
	}
	if err := checkRuntime(profile, s); err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		INSERT INTO runtime_state
			(token, eth_pool, circulating_supply, graduated, start_time, limits_start,
			 real_token, lp_address, claim_mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token) DO UPDATE SET
			eth_pool = EXCLUDED.eth_pool,
			circulating_supply = EXCLUDED.circulating_supply,
			start_time = EXCLUDED.start_time,
			limits_start = EXCLUDED.limits_start`,
		s.Token, s.EthPool.String(), s.CirculatingSupply.String(), s.Graduated,
		s.StartTime, s.LimitsStart, s.RealToken, s.LPAddress, s.ClaimMode)
	if err != nil {
		return fmt.Errorf("failed to write runtime state: %w", err)
	}
	return nil
}

func (t *pgTx) SetHolderBalance(token, holder types.Address, balance sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if balance.IsNil() || balance.IsNegative() {
		return ErrNegativeAmount
	}
	if balance.IsZero() {
		if _, err := t.tx.Exec(
			`DELETE FROM holder_balances WHERE token = $1 AND holder = $2`,
			token, holder); err != nil {
			return fmt.Errorf("failed to deregister holder: %w", err)
		}
		return nil
	}
	if _, err := t.tx.Exec(`
		INSERT INTO holder_balances (token, holder, balance) VALUES ($1, $2, $3)
		ON CONFLICT (token, holder) DO UPDATE SET balance = EXCLUDED.balance`,
		token, holder, balance.String()); err != nil {
		return fmt.Errorf("failed to write holder balance: %w", err)
	}
	return nil
}

func (t *pgTx) CreditNative(account types.Address, amount sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrNegativeAmount
	}
	_, err := t.tx.Exec(`
		INSERT INTO native_balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = native_balances.balance + EXCLUDED.balance`,
		account, amount.String())
	if err != nil {
		return fmt.Errorf("failed to credit native balance: %w", err)
	}
	return nil
}

func (t *pgTx) DebitNative(account types.Address, amount sdkmath.Int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return ErrNegativeAmount
	}
	current, err := t.NativeBalance(account)
	if err != nil {
		return err
	}
	if current.LT(amount) {
		return ErrInsufficientNative
	}
	_, err = t.tx.Exec(
		`UPDATE native_balances SET balance = $2 WHERE account = $1`,
		account, current.Sub(amount).String())
	if err != nil {
		return fmt.Errorf("failed to debit native balance: %w", err)
	}
	return nil
}

func (t *pgTx) MarkGraduated(token, realToken, lpAddress types.Address, claimMode bool) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	res, err := t.tx.Exec(`
		UPDATE runtime_state
		SET graduated = TRUE, real_token = $2, lp_address = $3, claim_mode = $4
		WHERE token = $1`,
		token, realToken, lpAddress, claimMode)
	if err != nil {
		return fmt.Errorf("failed to mark token graduated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check graduation update: %w", err)
	}
	if affected == 0 {
		return ErrTokenUnknown
	}
	return nil
}

func (t *pgTx) ClearHolders(token types.Address) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if _, err := t.tx.Exec(`DELETE FROM holder_balances WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to clear holder registry: %w", err)
	}
	return nil
}

func (t *pgTx) MarkClaimed(token, holder types.Address) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if _, err := t.tx.Exec(`
		INSERT INTO claims (token, holder) VALUES ($1, $2)
		ON CONFLICT (token, holder) DO NOTHING`, token, holder); err != nil {
		return fmt.Errorf("failed to record claim: %w", err)
	}
	return nil
}

func (t *pgTx) SetClaimCursor(token types.Address, cursor int) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if _, err := t.tx.Exec(`
		INSERT INTO claim_cursors (token, cursor_position) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET
			cursor_position = EXCLUDED.cursor_position,
			updated_at = CURRENT_TIMESTAMP`,
		token, cursor); err != nil {
		return fmt.Errorf("failed to persist claim cursor: %w", err)
	}
	return nil
}

func (t *pgTx) RecordEvent(ev types.MarketEvent) error {
	if err := t.authorizeWrite(); err != nil {
		return err
	}
	if _, err := t.tx.Exec(`
		INSERT INTO market_events
			(id, kind, token, actor, side, eth_amount, token_amount, platform_fee, dev_fee, event_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ev.ID, ev.Kind, ev.Token, ev.Actor, ev.Side,
		ev.EthAmount.String(), ev.TokenAmount.String(),
		ev.PlatformFee.String(), ev.DevFee.String(), ev.Timestamp); err != nil {
		return fmt.Errorf("failed to record market event: %w", err)
	}
	return nil
}

func (t *pgTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to roll back ledger transaction: %w", err)
	}
	return nil
}
