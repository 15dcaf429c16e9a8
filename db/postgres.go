package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"fairplay/config"
	"fairplay/errs"
	"fairplay/game"
	"fairplay/state"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Postgres is the durable repository.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and initializes the schema.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	log.Println("🔌 Connecting to PostgreSQL...")

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = config.MaxOpenConns
	poolConfig.MinConns = config.MaxIdleConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ PostgreSQL connected successfully")

	p := &Postgres{pool: pool}
	if err := p.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return p, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	log.Println("🔌 Closing PostgreSQL connection...")
	p.pool.Close()
}

// HealthCheck pings the database.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// InitSchema creates the tables if they don't exist
func (p *Postgres) InitSchema(ctx context.Context) error {
	log.Println("📋 Initializing database schema...")

	commitmentsSchema := `
	CREATE TABLE IF NOT EXISTS seed_commitments (
		id TEXT PRIMARY KEY,
		namespace TEXT NOT NULL,
		secret_seed TEXT NOT NULL,
		public_hash TEXT NOT NULL UNIQUE,
		sequence_counter BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL CHECK (status IN ('active', 'retired')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		retired_at TIMESTAMPTZ
	);

	-- At most one active commitment per namespace
	CREATE UNIQUE INDEX IF NOT EXISTS idx_seed_commitments_active
		ON seed_commitments(namespace) WHERE status = 'active';

	-- Reveal listing
	CREATE INDEX IF NOT EXISTS idx_seed_commitments_retired
		ON seed_commitments(namespace, retired_at DESC) WHERE status = 'retired';
	`

	if _, err := p.pool.Exec(ctx, commitmentsSchema); err != nil {
		return fmt.Errorf("failed to create seed_commitments table: %w", err)
	}

	roundsSchema := `
	CREATE TABLE IF NOT EXISTS round_records (
		id BIGSERIAL PRIMARY KEY,
		namespace TEXT NOT NULL,
		commitment_id TEXT NOT NULL REFERENCES seed_commitments(id),
		public_hash TEXT NOT NULL,
		sequence_number BIGINT NOT NULL,
		client_seed TEXT NOT NULL,
		game_type TEXT NOT NULL,
		params JSONB NOT NULL,
		raw_digest TEXT NOT NULL,
		result JSONB NOT NULL,
		signature TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(commitment_id, sequence_number)
	);

	CREATE INDEX IF NOT EXISTS idx_round_records_namespace ON round_records(namespace, id DESC);

	-- Rounds are append-only
	CREATE OR REPLACE RULE round_records_no_update AS ON UPDATE TO round_records DO INSTEAD NOTHING;
	CREATE OR REPLACE RULE round_records_no_delete AS ON DELETE TO round_records DO INSTEAD NOTHING;
	`

	if _, err := p.pool.Exec(ctx, roundsSchema); err != nil {
		return fmt.Errorf("failed to create round_records table: %w", err)
	}

	log.Println("✅ Database schema initialized")
	return nil
}

/* =========================
   SEED COMMITMENTS
========================= */

const commitmentColumns = `id, namespace, secret_seed, public_hash, sequence_counter, status, created_at, retired_at`

func scanCommitment(row pgx.Row) (state.CommitmentRow, error) {
	var c state.CommitmentRow
	var counter int64
	var status string

	if err := row.Scan(
		&c.ID,
		&c.Namespace,
		&c.SecretSeed,
		&c.PublicHash,
		&counter,
		&status,
		&c.CreatedAt,
		&c.RetiredAt,
	); err != nil {
		return state.CommitmentRow{}, err
	}

	c.SequenceCounter = uint64(counter)
	c.Status = state.Status(status)
	return c, nil
}

func (p *Postgres) ActiveCommitment(ctx context.Context, namespace string) (state.CommitmentRow, error) {
	query := `SELECT ` + commitmentColumns + ` FROM seed_commitments WHERE namespace = $1 AND status = 'active'`

	c, err := scanCommitment(p.pool.QueryRow(ctx, query, namespace))
	if errors.Is(err, pgx.ErrNoRows) {
		return state.CommitmentRow{}, errs.New(errs.CodeNotFound, "no active commitment for %q", namespace)
	}
	if err != nil {
		return state.CommitmentRow{}, fmt.Errorf("failed to get active commitment: %w", err)
	}
	return c, nil
}

func (p *Postgres) Commitment(ctx context.Context, id string) (state.CommitmentRow, error) {
	query := `SELECT ` + commitmentColumns + ` FROM seed_commitments WHERE id = $1`

	c, err := scanCommitment(p.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return state.CommitmentRow{}, errs.New(errs.CodeNotFound, "commitment %s not found", id)
	}
	if err != nil {
		return state.CommitmentRow{}, fmt.Errorf("failed to get commitment: %w", err)
	}
	return c, nil
}

func (p *Postgres) RetiredCommitments(ctx context.Context, namespace string, limit int) ([]state.CommitmentRow, error) {
	if limit <= 0 {
		limit = config.MaxRevealedLimit
	}

	query := `
		SELECT ` + commitmentColumns + `
		FROM seed_commitments
		WHERE namespace = $1 AND status = 'retired'
		ORDER BY retired_at DESC
		LIMIT $2
	`

	rows, err := p.pool.Query(ctx, query, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query retired commitments: %w", err)
	}
	defer rows.Close()

	var out []state.CommitmentRow
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

func (p *Postgres) Rotate(ctx context.Context, previousID string, next state.CommitmentRow, retiredAt time.Time) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rotation: %w", err)
	}
	defer tx.Rollback(ctx)

	if previousID != "" {
		tag, err := tx.Exec(ctx, `
			UPDATE seed_commitments
			SET status = 'retired', retired_at = $2
			WHERE id = $1 AND status = 'active'
		`, previousID, retiredAt)
		if err != nil {
			return fmt.Errorf("failed to retire commitment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errs.New(errs.CodeStaleCommitment, "commitment %s is no longer active", previousID)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO seed_commitments
		(id, namespace, secret_seed, public_hash, sequence_counter, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'active', $6)
	`, next.ID, next.Namespace, next.SecretSeed, next.PublicHash, int64(next.SequenceCounter), next.CreatedAt)
	if isUniqueViolation(err) {
		return errs.Wrap(errs.CodeActivationConflict, err, "namespace %q already has an active commitment", next.Namespace)
	}
	if err != nil {
		return fmt.Errorf("failed to insert commitment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}
	return nil
}

func (p *Postgres) NextSequence(ctx context.Context, id string) (uint64, error) {
	query := `
		UPDATE seed_commitments
		SET sequence_counter = sequence_counter + 1
		WHERE id = $1 AND status = 'active'
		RETURNING sequence_counter - 1
	`

	var seq int64
	err := p.pool.QueryRow(ctx, query, id).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, lookupErr := p.Commitment(ctx, id); lookupErr != nil {
			return 0, lookupErr
		}
		return 0, errs.New(errs.CodeStaleCommitment, "commitment %s is retired", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume sequence: %w", err)
	}
	return uint64(seq), nil
}

/* =========================
   ROUND RECORDS
========================= */

// InsertRound stores a round, retrying transient failures. Before each retry
// it re-reads (commitment_id, sequence_number): a timed-out attempt may have
// committed.
func (p *Postgres) InsertRound(ctx context.Context, record state.RoundRecord) error {
	for attempt := 1; ; attempt++ {
		err := p.insertRound(ctx, record)
		if err == nil {
			return nil
		}

		if isUniqueViolation(err) {
			return p.reconcile(ctx, record)
		}
		if !isTransient(err) || attempt >= config.MaxRetries {
			return fmt.Errorf("failed to store round: %w", err)
		}

		log.Printf("⚠️ Round %s/%d insert failed (attempt %d/%d): %v",
			record.CommitmentID, record.SequenceNumber, attempt, config.MaxRetries, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * config.RetryDelay):
		}

		if err := p.reconcile(ctx, record); err == nil {
			return nil
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}
}

// reconcile accepts an existing row only if it is the same outcome.
func (p *Postgres) reconcile(ctx context.Context, record state.RoundRecord) error {
	existing, err := p.Round(ctx, record.CommitmentID, record.SequenceNumber)
	if err != nil {
		return err
	}
	if !existing.SameOutcome(record) {
		return errs.New(errs.CodeSequenceConflict, "round %s/%d already recorded with a different outcome",
			record.CommitmentID, record.SequenceNumber)
	}
	return nil
}

func (p *Postgres) insertRound(ctx context.Context, r state.RoundRecord) error {
	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	resultJSON, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO round_records
		(namespace, commitment_id, public_hash, sequence_number, client_seed, game_type,
		 params, raw_digest, result, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = p.pool.Exec(
		ctx,
		query,
		r.Namespace,
		r.CommitmentID,
		r.PublicHash,
		int64(r.SequenceNumber),
		r.ClientSeed,
		string(r.GameType),
		paramsJSON,
		r.RawDigest,
		resultJSON,
		r.Signature,
		r.CreatedAt,
	)
	return err
}

const roundColumns = `namespace, commitment_id, public_hash, sequence_number, client_seed, game_type,
	params, raw_digest, result, signature, created_at`

func scanRound(row pgx.Row) (state.RoundRecord, error) {
	var r state.RoundRecord
	var seq int64
	var gameType string
	var paramsJSON, resultJSON []byte

	if err := row.Scan(
		&r.Namespace,
		&r.CommitmentID,
		&r.PublicHash,
		&seq,
		&r.ClientSeed,
		&gameType,
		&paramsJSON,
		&r.RawDigest,
		&resultJSON,
		&r.Signature,
		&r.CreatedAt,
	); err != nil {
		return state.RoundRecord{}, err
	}

	r.SequenceNumber = uint64(seq)
	r.GameType = game.GameType(gameType)

	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		return state.RoundRecord{}, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &r.Result); err != nil {
		return state.RoundRecord{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return r, nil
}

func (p *Postgres) Round(ctx context.Context, commitmentID string, sequence uint64) (state.RoundRecord, error) {
	query := `SELECT ` + roundColumns + ` FROM round_records WHERE commitment_id = $1 AND sequence_number = $2`

	r, err := scanRound(p.pool.QueryRow(ctx, query, commitmentID, int64(sequence)))
	if errors.Is(err, pgx.ErrNoRows) {
		return state.RoundRecord{}, errs.New(errs.CodeNotFound, "round %s/%d not found", commitmentID, sequence)
	}
	if err != nil {
		return state.RoundRecord{}, fmt.Errorf("failed to get round: %w", err)
	}
	return r, nil
}

func (p *Postgres) Rounds(ctx context.Context, namespace string, limit int) ([]state.RoundRecord, error) {
	if limit <= 0 {
		limit = config.MaxRevealedLimit
	}

	query := `SELECT ` + roundColumns + ` FROM round_records WHERE namespace = $1 ORDER BY id DESC LIMIT $2`

	rows, err := p.pool.Query(ctx, query, namespace, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var out []state.RoundRecord
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}

/* =========================
   ERROR CLASSIFICATION
========================= */

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return true
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		}
		return false
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
