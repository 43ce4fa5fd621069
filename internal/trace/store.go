// Copyright 2018 Denis Bernard <db047h@gmail.com>
// Licensed under the MIT license. See license text in the LICENSE file.

// Package trace records stream transfers in an SQL database.
//
// Each simulation run gets a row in the runs table and one row per transfer
// in the transfers table. Rows are buffered and inserted in batches, one
// transaction per batch.
//
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/db47h/rvsim"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS transfers (
	run_id TEXT    NOT NULL,
	step   INTEGER NOT NULL,
	tick   INTEGER NOT NULL,
	domain TEXT    NOT NULL,
	stream TEXT    NOT NULL,
	value  TEXT    NOT NULL
)`,
}

const insertTransfer = `INSERT INTO transfers (run_id, step, tick, domain, stream, value) VALUES (?, ?, ?, ?, ?, ?)`

// A Transfer is one recorded transfer.
//
type Transfer struct {
	Step   uint64
	Tick   uint64
	Domain string
	Stream string
	Value  string
}

// Store is an rvsim.Observer writing transfers to db.
//
type Store struct {
	db        *sql.DB
	runID     string
	batchSize int
	rows      []Transfer
	written   uint64
	err       error
	logger    *zap.Logger
}

// NewStore returns a new Store. If runID is empty, a random one is generated.
// batchSize <= 0 means 256.
//
func NewStore(db *sql.DB, runID string, batchSize int, logger *zap.Logger) *Store {
	if runID == "" {
		runID = uuid.NewString()
	}
	if batchSize <= 0 {
		batchSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:        db,
		runID:     runID,
		batchSize: batchSize,
		rows:      make([]Transfer, 0, batchSize),
		logger:    logger.With(zap.String("component", "trace"), zap.String("run", runID)),
	}
}

// RunID returns the run identifier.
//
func (s *Store) RunID() string { return s.runID }

// Init creates the tables if needed and registers the run.
//
func (s *Store) Init(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrap(err, "create trace tables")
		}
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, started_at) VALUES (?, ?)`, s.runID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "register run")
	}
	s.logger.Info("trace started")
	return nil
}

// Observe implements rvsim.Observer. Only transfers are recorded. Once a
// write fails, the Store stops recording; see Err.
//
func (s *Store) Observe(ev *rvsim.Event) {
	if ev.Kind != rvsim.Transfer || s.err != nil {
		return
	}
	s.rows = append(s.rows, Transfer{
		Step:   ev.Step,
		Tick:   ev.Tick,
		Domain: ev.Domain,
		Stream: ev.Stream,
		Value:  fmt.Sprint(ev.Value),
	})
	if len(s.rows) >= s.batchSize {
		s.err = s.Flush(context.Background())
		if s.err != nil {
			s.logger.Error("trace write failed", zap.Error(s.err))
		}
	}
}

// Flush writes buffered transfers.
//
func (s *Store) Flush(ctx context.Context) (err error) {
	if len(s.rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, insertTransfer)
	if err != nil {
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()
	for _, r := range s.rows {
		if _, err = stmt.ExecContext(ctx, s.runID, r.Step, r.Tick, r.Domain, r.Stream, r.Value); err != nil {
			return errors.Wrapf(err, "insert step %d stream %s", r.Step, r.Stream)
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	s.written += uint64(len(s.rows))
	s.logger.Debug("trace flushed", zap.Int("rows", len(s.rows)), zap.Uint64("total", s.written))
	s.rows = s.rows[:0]
	return nil
}

// Err returns the first error that stopped recording, if any.
//
func (s *Store) Err() error { return s.err }

// Written returns the number of transfers written to the database.
//
func (s *Store) Written() uint64 { return s.written }

// Transfers returns the recorded transfers of a stream for this run, in step
// order.
//
func (s *Store) Transfers(ctx context.Context, stream string) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, tick, domain, stream, value FROM transfers WHERE run_id = ? AND stream = ? ORDER BY step`,
		s.runID, stream)
	if err != nil {
		return nil, errors.Wrap(err, "query transfers")
	}
	defer rows.Close()
	var ts []Transfer
	for rows.Next() {
		var t Transfer
		if err = rows.Scan(&t.Step, &t.Tick, &t.Domain, &t.Stream, &t.Value); err != nil {
			return nil, errors.Wrap(err, "scan transfer")
		}
		ts = append(ts, t)
	}
	return ts, errors.Wrap(rows.Err(), "query transfers")
}
