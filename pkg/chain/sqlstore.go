package chain

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
)

// SetupSQLSchema initializes the tables used by SQLStore. It should be
// called once before opening a store against a new database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSQLSchema(db *sql.DB) error {
	const (
		schemaContexts = `
CREATE TABLE IF NOT EXISTS chain_contexts (
    context_id INTEGER PRIMARY KEY,
    context_key TEXT NOT NULL UNIQUE
);
`
		schemaTransitions = `
CREATE TABLE IF NOT EXISTS chain_transitions (
    context_id INTEGER NOT NULL,
    token TEXT NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (context_id, token)
);
`
		schemaMeta = `
CREATE TABLE IF NOT EXISTS chain_meta (
    meta_key TEXT PRIMARY KEY,
    meta_value INTEGER NOT NULL
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaContexts); err != nil {
		return fmt.Errorf("could not create contexts schema: %w", err)
	}
	if _, err = tx.Exec(schemaTransitions); err != nil {
		return fmt.Errorf("could not create transitions schema: %w", err)
	}
	if _, err = tx.Exec(schemaMeta); err != nil {
		return fmt.Errorf("could not create meta schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// SQLStore is the durable Store implementation on SQLite. Frequencies are
// stored natively per (context, token) row, so sampling reads the counts and
// walks them cumulatively; no counter-suffix scheme is needed. The store
// holds prepared statements for its hot paths.
type SQLStore struct {
	db    *sql.DB
	order int

	stmtGetOrInsertContext *sql.Stmt
	stmtGetContextID       *sql.Stmt
	stmtInsertLink         *sql.Stmt
	stmtGetTransitions     *sql.Stmt
	stmtRandomContext      *sql.Stmt
	stmtGetWeight          *sql.Stmt
	stmtCountContexts      *sql.Stmt
	stmtCountTransitions   *sql.Stmt
	stmtTotalWeight        *sql.Stmt

	logger *slog.Logger
}

// NewSQLStore opens a store of the given order over an initialized database.
// The order is recorded in the database on first use; reopening with a
// different order is rejected rather than silently reinterpreting keys.
func NewSQLStore(db *sql.DB, order int) (*SQLStore, error) {
	var stored int
	err := db.QueryRow(`SELECT meta_value FROM chain_meta WHERE meta_key = 'order';`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err = db.Exec(`INSERT INTO chain_meta (meta_key, meta_value) VALUES ('order', ?);`, order); err != nil {
			return nil, fmt.Errorf("could not record store order: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("could not read store order: %w", err)
	case stored != order:
		return nil, fmt.Errorf("%w: database holds order %d, requested order %d", ErrOrderMismatch, stored, order)
	}

	stmtGetOrInsertContext, err := db.Prepare(`INSERT INTO chain_contexts (context_key) VALUES (?) ON CONFLICT(context_key) DO UPDATE SET context_key=excluded.context_key RETURNING context_id;`)
	if err != nil {
		return nil, err
	}

	stmtGetContextID, err := db.Prepare(`SELECT context_id FROM chain_contexts WHERE context_key = ?;`)
	if err != nil {
		return nil, err
	}

	stmtInsertLink, err := db.Prepare(`INSERT INTO chain_transitions (context_id, token, frequency) VALUES (?, ?, 1) ON CONFLICT(context_id, token) DO UPDATE SET frequency = frequency + 1;`)
	if err != nil {
		return nil, err
	}

	stmtGetTransitions, err := db.Prepare(`SELECT token, frequency FROM chain_transitions WHERE context_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtRandomContext, err := db.Prepare(`SELECT context_key FROM chain_contexts ORDER BY RANDOM() LIMIT 1;`)
	if err != nil {
		return nil, err
	}

	stmtGetWeight, err := db.Prepare(`SELECT frequency FROM chain_transitions WHERE context_id = ? AND token = ?;`)
	if err != nil {
		return nil, err
	}

	stmtCountContexts, err := db.Prepare(`SELECT COUNT(*) FROM chain_contexts;`)
	if err != nil {
		return nil, err
	}

	stmtCountTransitions, err := db.Prepare(`SELECT COUNT(*) FROM chain_transitions;`)
	if err != nil {
		return nil, err
	}

	stmtTotalWeight, err := db.Prepare(`SELECT coalesce(SUM(frequency), 0) FROM chain_transitions;`)
	if err != nil {
		return nil, err
	}

	return &SQLStore{
		db:                     db,
		order:                  order,
		stmtGetOrInsertContext: stmtGetOrInsertContext,
		stmtGetContextID:       stmtGetContextID,
		stmtInsertLink:         stmtInsertLink,
		stmtGetTransitions:     stmtGetTransitions,
		stmtRandomContext:      stmtRandomContext,
		stmtGetWeight:          stmtGetWeight,
		stmtCountContexts:      stmtCountContexts,
		stmtCountTransitions:   stmtCountTransitions,
		stmtTotalWeight:        stmtTotalWeight,
		logger:                 discardLogger(),
	}, nil
}

// Close releases the store's prepared statements. The database connection
// itself stays with the caller.
func (s *SQLStore) Close() {
	_ = s.stmtGetOrInsertContext.Close()
	_ = s.stmtGetContextID.Close()
	_ = s.stmtInsertLink.Close()
	_ = s.stmtGetTransitions.Close()
	_ = s.stmtRandomContext.Close()
	_ = s.stmtGetWeight.Close()
	_ = s.stmtCountContexts.Close()
	_ = s.stmtCountTransitions.Close()
	_ = s.stmtTotalWeight.Close()
}

// SetLogger sets the logger for the store. By default, all logs are discarded.
func (s *SQLStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Order returns the configured context window length.
func (s *SQLStore) Order() int { return s.order }

// Insert increases the occurrence count for (from, to) by one.
func (s *SQLStore) Insert(ctx context.Context, from Context, to string) error {
	if err := checkOrder(s.order, from); err != nil {
		return err
	}
	var contextID int
	if err := s.stmtGetOrInsertContext.QueryRowContext(ctx, from.Key()).Scan(&contextID); err != nil {
		return fmt.Errorf("could not get or insert context '%s': %w", from.Key(), err)
	}
	if _, err := s.stmtInsertLink.ExecContext(ctx, contextID, to); err != nil {
		return fmt.Errorf("could not insert transition for '%s': %w", from.Key(), err)
	}
	return nil
}

// InsertBatch records every token in tos as a transition from from, within
// one transaction.
func (s *SQLStore) InsertBatch(ctx context.Context, from Context, tos []string) error {
	if err := checkOrder(s.order, from); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var contextID int
	if err = tx.StmtContext(ctx, s.stmtGetOrInsertContext).QueryRowContext(ctx, from.Key()).Scan(&contextID); err != nil {
		return fmt.Errorf("could not get or insert context '%s': %w", from.Key(), err)
	}
	stmtInsertLink := tx.StmtContext(ctx, s.stmtInsertLink)
	for _, to := range tos {
		if _, err = stmtInsertLink.ExecContext(ctx, contextID, to); err != nil {
			return fmt.Errorf("could not insert transition for '%s': %w", from.Key(), err)
		}
	}
	return tx.Commit()
}

// Sample reads the (token, frequency) rows for from and selects one by a
// cumulative-count walk, weighting each token by its recorded frequency.
func (s *SQLStore) Sample(ctx context.Context, from Context) (string, error) {
	if err := checkOrder(s.order, from); err != nil {
		return "", err
	}
	var contextID int
	err := s.stmtGetContextID.QueryRowContext(ctx, from.Key()).Scan(&contextID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoTransitions
	}
	if err != nil {
		return "", fmt.Errorf("could not get context ID for '%s': %w", from.Key(), err)
	}

	rows, err := s.stmtGetTransitions.QueryContext(ctx, contextID)
	if err != nil {
		return "", err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	type choice struct {
		token string
		freq  int
	}
	var choices []choice
	var total int
	for rows.Next() {
		var c choice
		if err = rows.Scan(&c.token, &c.freq); err != nil {
			return "", err
		}
		choices = append(choices, c)
		total += c.freq
	}
	if err = rows.Err(); err != nil {
		return "", err
	}
	if total == 0 {
		return "", ErrNoTransitions
	}

	pick := rand.IntN(total)
	for _, c := range choices {
		pick -= c.freq
		if pick < 0 {
			return c.token, nil
		}
	}
	return "", ErrNoTransitions
}

// SampleAny returns a uniformly chosen existing context.
func (s *SQLStore) SampleAny(ctx context.Context) (Context, error) {
	var key string
	err := s.stmtRandomContext.QueryRowContext(ctx).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return Context{}, ErrEmptyStore
	}
	if err != nil {
		return Context{}, err
	}
	return ParseKey(key), nil
}

// Weight returns the recorded occurrence count for a single transition;
// zero means the transition has never been observed.
func (s *SQLStore) Weight(ctx context.Context, from Context, to string) (int, error) {
	if err := checkOrder(s.order, from); err != nil {
		return 0, err
	}
	var contextID int
	err := s.stmtGetContextID.QueryRowContext(ctx, from.Key()).Scan(&contextID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var freq int
	err = s.stmtGetWeight.QueryRowContext(ctx, contextID, to).Scan(&freq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return freq, nil
}
