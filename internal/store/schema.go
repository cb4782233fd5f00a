package store

// schema is applied once, by Create, against a brand-new database file.
// It defines three tables: balances (snapshot rows), snapshot_meta
// (singleton), and claim_requests (append-only log).
const schema = `
CREATE TABLE balances (
	l1_address     TEXT PRIMARY KEY,
	initial_amount INTEGER NOT NULL,
	consumed       INTEGER NOT NULL DEFAULT 0,
	destination_id TEXT,
	relay_tx_id    TEXT,
	consumed_at    TEXT,
	created_at     TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE INDEX idx_balances_consumed ON balances(consumed);

CREATE TABLE snapshot_meta (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	block_height     INTEGER NOT NULL,
	address_count    INTEGER NOT NULL,
	total_amount     INTEGER NOT NULL,
	rpc_node         TEXT NOT NULL,
	mint_endpoint    TEXT NOT NULL,
	created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE TABLE claim_requests (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	l1_address         TEXT NOT NULL,
	destination_id     TEXT NOT NULL,
	amount             INTEGER NOT NULL,
	signature          TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	error_message      TEXT,
	upstream_response  TEXT,
	created_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	processed_at       TEXT
);
CREATE INDEX idx_claim_requests_address ON claim_requests(l1_address);
CREATE INDEX idx_claim_requests_status ON claim_requests(status);
`
