// Package store implements the balance store: the single-writer hub that
// owns the balances, snapshot_meta, and claim_requests tables and offers
// only value-returning operations.
//
// Storage is a single sqlite3 file opened in WAL mode via jmoiron/sqlx, with
// the driver's `_txlock=immediate` DSN option so every transaction acquires
// its write lock up front, the same pattern spolu-settle's lib/db/sql.go
// uses for its sqlite DSNs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alpha-labs/alpha-faucet/internal/ferr"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// Balance is a single row of the balances table.
type Balance struct {
	L1Address     string     `db:"l1_address"`
	InitialAmount uint64     `db:"initial_amount"`
	Consumed      bool       `db:"consumed"`
	DestinationID *string    `db:"destination_id"`
	RelayTxID     *string    `db:"relay_tx_id"`
	ConsumedAtRaw *string    `db:"consumed_at"`
	CreatedAtRaw  string     `db:"created_at"`
	ConsumedAt    *time.Time `db:"-"`
	CreatedAt     time.Time  `db:"-"`
}

// SnapshotMeta is the singleton snapshot_meta row.
type SnapshotMeta struct {
	BlockHeight  int64     `db:"block_height"`
	AddressCount int64     `db:"address_count"`
	TotalAmount  uint64    `db:"total_amount"`
	RPCNode      string    `db:"rpc_node"`
	MintEndpoint string    `db:"mint_endpoint"`
	CreatedAtRaw string    `db:"created_at"`
	CreatedAt    time.Time `db:"-"`
}

// ClaimRequest is a row of the append-only claim_requests log.
type ClaimRequest struct {
	ID               int64   `db:"id"`
	L1Address        string  `db:"l1_address"`
	DestinationID    string  `db:"destination_id"`
	Amount           uint64  `db:"amount"`
	Signature        string  `db:"signature"`
	Status           string  `db:"status"`
	ErrorMessage     *string `db:"error_message"`
	UpstreamResponse *string `db:"upstream_response"`
}

// BalanceSeed is one row inserted by the snapshot builder.
type BalanceSeed struct {
	Address       string
	InitialAmount uint64
}

// ConsumeOutcome is the result tag of AtomicConsume.
type ConsumeOutcome string

const (
	ConsumeSuccess         ConsumeOutcome = "success"
	ConsumeNotFound        ConsumeOutcome = "not_found"
	ConsumeAlreadyConsumed ConsumeOutcome = "already_consumed"
	ConsumeRaced           ConsumeOutcome = "raced"
)

// Store wraps a single sqlite3 database file.
type Store struct {
	db *sqlx.DB
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_txlock=immediate&_foreign_keys=on", path)
}

// Open connects to an existing database file at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn(path))
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "open database")
	}
	db.SetMaxOpenConns(1) // sqlite3 + WAL: one writer; avoids spurious SQLITE_BUSY under Go's pool
	return &Store{db: db}, nil
}

// Create refuses to proceed if path already exists, otherwise creates a
// fresh database file with the schema applied.
func Create(path string) (*Store, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ferr.New(ferr.StoreFailure, "database already exists at %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "stat database path")
	}

	db, err := sqlx.Connect("sqlite3", dsn(path))
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "create database")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.Remove(path)
		return nil, ferr.Wrap(ferr.StoreFailure, err, "apply schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func normalize(addr string) string {
	out := make([]byte, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Find returns the row for addr, or nil if absent. Lookup is case
// insensitive; addresses are normalized before querying.
func (s *Store) Find(ctx context.Context, address string) (*Balance, error) {
	var b Balance
	err := s.db.GetContext(ctx, &b, `SELECT l1_address, initial_amount, consumed,
		destination_id, relay_tx_id, consumed_at, created_at
		FROM balances WHERE l1_address = ?`, normalize(address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "find balance")
	}
	if err := hydrate(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

func hydrate(b *Balance) error {
	if b.CreatedAtRaw != "" {
		t, err := time.Parse(timeLayout, b.CreatedAtRaw)
		if err != nil {
			return ferr.Wrap(ferr.StoreFailure, err, "parse created_at")
		}
		b.CreatedAt = t
	}
	if b.ConsumedAtRaw != nil {
		t, err := time.Parse(timeLayout, *b.ConsumedAtRaw)
		if err != nil {
			return ferr.Wrap(ferr.StoreFailure, err, "parse consumed_at")
		}
		b.ConsumedAt = &t
	}
	return nil
}

// BulkInsertBalances inserts the whole batch in a single transaction,
// rejecting it entirely on any primary-key collision.
func (s *Store) BulkInsertBalances(ctx context.Context, batch []BalanceSeed) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "begin bulk insert")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO balances (l1_address, initial_amount) VALUES (?, ?)`)
	if err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "prepare bulk insert")
	}
	defer stmt.Close()

	for _, seed := range batch {
		if seed.InitialAmount == 0 {
			continue // zero-balance entries must not be inserted
		}
		if _, err := stmt.ExecContext(ctx, normalize(seed.Address), seed.InitialAmount); err != nil {
			return ferr.Wrap(ferr.StoreFailure, err, "insert balance %s", seed.Address)
		}
	}
	if err := tx.Commit(); err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "commit bulk insert")
	}
	return nil
}

// AtomicConsume is the critical at-most-once primitive: in one serialized,
// write-locking transaction, read the row, short-circuit if already
// consumed, and conditionally update it with `WHERE consumed = 0` so that of
// two racing transactions exactly one observes changes==1.
func (s *Store) AtomicConsume(ctx context.Context, address, destinationID, txIDPlaceholder string) (ConsumeOutcome, *Balance, error) {
	addrNorm := normalize(address)

	tx, err := s.db.BeginTxx(ctx, nil) // DSN _txlock=immediate makes this BEGIN IMMEDIATE
	if err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "begin atomic consume")
	}
	defer tx.Rollback()

	var existing Balance
	err = tx.GetContext(ctx, &existing, `SELECT l1_address, initial_amount, consumed,
		destination_id, relay_tx_id, consumed_at, created_at
		FROM balances WHERE l1_address = ?`, addrNorm)
	if errors.Is(err, sql.ErrNoRows) {
		return ConsumeNotFound, nil, nil
	}
	if err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "read balance for consume")
	}
	if existing.Consumed {
		if herr := hydrate(&existing); herr != nil {
			return "", nil, herr
		}
		return ConsumeAlreadyConsumed, &existing, nil
	}

	res, err := tx.ExecContext(ctx, `UPDATE balances SET consumed = 1,
		destination_id = ?, relay_tx_id = ?, consumed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE l1_address = ? AND consumed = 0`,
		destinationID, txIDPlaceholder, addrNorm)
	if err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "conditional consume update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "rows affected")
	}
	if n == 0 {
		return ConsumeRaced, nil, nil
	}

	var updated Balance
	if err := tx.GetContext(ctx, &updated, `SELECT l1_address, initial_amount, consumed,
		destination_id, relay_tx_id, consumed_at, created_at
		FROM balances WHERE l1_address = ?`, addrNorm); err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "read consumed balance")
	}
	if err := tx.Commit(); err != nil {
		return "", nil, ferr.Wrap(ferr.StoreFailure, err, "commit atomic consume")
	}
	if err := hydrate(&updated); err != nil {
		return "", nil, err
	}
	return ConsumeSuccess, &updated, nil
}

// FinalizeRelayTxID sets relay_tx_id for the matching row; idempotent under
// identical inputs.
func (s *Store) FinalizeRelayTxID(ctx context.Context, address, destinationID, txID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE balances SET relay_tx_id = ? WHERE l1_address = ? AND destination_id = ?`,
		txID, normalize(address), destinationID)
	if err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "finalize relay tx id")
	}
	return nil
}

// LogClaimRequest inserts a pending log row and returns its id.
func (s *Store) LogClaimRequest(ctx context.Context, address, destinationID string, amount uint64, sigHex string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO claim_requests (l1_address, destination_id, amount, signature, status)
		 VALUES (?, ?, ?, ?, 'pending')`,
		normalize(address), destinationID, amount, sigHex)
	if err != nil {
		return 0, ferr.Wrap(ferr.StoreFailure, err, "log claim request")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ferr.Wrap(ferr.StoreFailure, err, "claim request id")
	}
	return id, nil
}

// UpdateClaimRequest finalizes a log row to status (success or failed).
func (s *Store) UpdateClaimRequest(ctx context.Context, id int64, status string, errText, upstreamResponse *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claim_requests SET status = ?, error_message = ?, upstream_response = ?,
		 processed_at = strftime('%Y-%m-%dT%H:%M:%fZ','now') WHERE id = ?`,
		status, errText, upstreamResponse, id)
	if err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "update claim request %d", id)
	}
	return nil
}

// ListClaimRequests returns the append-only claim log for address, most
// recent first. Operators use this to reconcile a balance left
// STUCK_PENDING after a relay failure: it is the only durable record of
// what was actually sent upstream and what came back.
func (s *Store) ListClaimRequests(ctx context.Context, address string) ([]ClaimRequest, error) {
	var rows []ClaimRequest
	err := s.db.SelectContext(ctx, &rows, `SELECT id, l1_address, destination_id, amount, signature,
		status, error_message, upstream_response FROM claim_requests
		WHERE l1_address = ? ORDER BY id DESC`, normalize(address))
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "list claim requests")
	}
	return rows, nil
}

// CountTotal returns the number of balance rows ever created.
func (s *Store) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM balances`); err != nil {
		return 0, ferr.Wrap(ferr.StoreFailure, err, "count total")
	}
	return n, nil
}

// CountUnconsumed returns the number of balance rows not yet consumed.
func (s *Store) CountUnconsumed(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM balances WHERE consumed = 0`); err != nil {
		return 0, ferr.Wrap(ferr.StoreFailure, err, "count unconsumed")
	}
	return n, nil
}

// GetSnapshotMeta returns the singleton metadata row, or nil if none exists.
func (s *Store) GetSnapshotMeta(ctx context.Context) (*SnapshotMeta, error) {
	var m SnapshotMeta
	err := s.db.GetContext(ctx, &m, `SELECT block_height, address_count, total_amount,
		rpc_node, mint_endpoint, created_at FROM snapshot_meta WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "get snapshot meta")
	}
	t, err := time.Parse(timeLayout, m.CreatedAtRaw)
	if err != nil {
		return nil, ferr.Wrap(ferr.StoreFailure, err, "parse snapshot meta created_at")
	}
	m.CreatedAt = t
	return &m, nil
}

// SetSnapshotMeta writes the singleton metadata row. Callers (only the
// snapshot builder) must ensure it is written exactly once.
func (s *Store) SetSnapshotMeta(ctx context.Context, m SnapshotMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_meta (id, block_height, address_count, total_amount, rpc_node, mint_endpoint)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		m.BlockHeight, m.AddressCount, m.TotalAmount, m.RPCNode, m.MintEndpoint)
	if err != nil {
		return ferr.Wrap(ferr.StoreFailure, err, "set snapshot meta")
	}
	return nil
}
