// Package claim implements the claim coordinator: the verify → reserve →
// relay → finalize pipeline with well-defined unwinding on every failure
// path.
package claim

import (
	"context"
	"strings"

	"github.com/decred/slog"

	"github.com/alpha-labs/alpha-faucet/internal/addr"
	"github.com/alpha-labs/alpha-faucet/internal/ferr"
	"github.com/alpha-labs/alpha-faucet/internal/mintclient"
	"github.com/alpha-labs/alpha-faucet/internal/sigverify"
	"github.com/alpha-labs/alpha-faucet/internal/store"
	"github.com/alpha-labs/alpha-faucet/internal/tokencfg"
)

// Request is the inbound claim as received at the HTTP boundary.
type Request struct {
	L1Address     string
	DestinationID string
	Amount        uint64
	SignatureHex  string
}

// Result is the finalize payload returned once a claim settles.
type Result struct {
	Address       string  `json:"addr"`
	DestinationID string  `json:"destination_id"`
	Amount        uint64  `json:"amount"`
	AmountCoins   float64 `json:"amount_coins"`
	RelayTxID     string  `json:"relay_tx_id"`
	OK            bool    `json:"ok"`
}

// Relayer is the upstream mint collaborator; mintclient.Client satisfies it
// in production, a fake satisfies it in tests.
type Relayer interface {
	Request(ctx context.Context, destinationID string, coinAmount float64) (*mintclient.Response, error)
}

// Coordinator owns no state of its own beyond the collaborators needed to
// run the pipeline; every durable fact lives in the store, and the
// coordinator never holds cross-operation locks of its own.
type Coordinator struct {
	store *store.Store
	codec addr.Codec
	mint  Relayer
	log   slog.Logger
}

// New builds a Coordinator.
func New(st *store.Store, codec addr.Codec, mint Relayer, log slog.Logger) *Coordinator {
	return &Coordinator{store: st, codec: codec, mint: mint, log: log}
}

// Claim runs the full verify/reserve/relay/finalize pipeline for one
// request.
func (c *Coordinator) Claim(ctx context.Context, req Request) (*Result, error) {
	val := c.codec.Validate(req.L1Address)
	if !val.Valid {
		return nil, ferr.New(ferr.InvalidAddress, "%s", val.Reason)
	}
	normAddr := val.Normalized

	if strings.TrimSpace(req.DestinationID) == "" {
		return nil, ferr.New(ferr.InvalidInput, "destination id must not be empty")
	}
	if req.Amount == 0 {
		return nil, ferr.New(ferr.InvalidInput, "amount must be greater than zero")
	}

	reqID, err := c.store.LogClaimRequest(ctx, normAddr, req.DestinationID, req.Amount, req.SignatureHex)
	if err != nil {
		return nil, err
	}

	fail := func(cause error) (*Result, error) {
		msg := cause.Error()
		if uerr := c.store.UpdateClaimRequest(ctx, reqID, "failed", &msg, nil); uerr != nil {
			c.log.Warnf("failed to record claim %d failure: %v", reqID, uerr)
		}
		c.log.Debugf("claim %d rejected: %v", reqID, cause)
		return nil, cause
	}

	row, err := c.store.Find(ctx, normAddr)
	if err != nil {
		return fail(err)
	}
	if row == nil {
		return fail(ferr.New(ferr.NotFound, "address not found in snapshot"))
	}

	if row.Consumed {
		dest := ""
		if row.DestinationID != nil {
			dest = *row.DestinationID
		}
		return fail(ferr.New(ferr.AlreadyConsumed, "address already consumed for destination %s", dest))
	}

	if req.Amount != row.InitialAmount {
		return fail(ferr.New(ferr.AmountMismatch, "requested %d does not match available %d", req.Amount, row.InitialAmount))
	}

	if _, err := sigverify.Verify(c.codec, normAddr, req.DestinationID, req.Amount, req.SignatureHex); err != nil {
		return fail(err)
	}

	// Step 9: reserve. From here on the balance entry is consumed no
	// matter what happens below; RESERVED -> FRESH is forbidden.
	outcome, _, cerr := c.store.AtomicConsume(ctx, normAddr, req.DestinationID, "pending")
	if cerr != nil {
		return fail(cerr)
	}
	switch outcome {
	case store.ConsumeNotFound:
		return fail(ferr.New(ferr.NotFound, "address not found in snapshot"))
	case store.ConsumeRaced, store.ConsumeAlreadyConsumed:
		return fail(ferr.New(ferr.AlreadyConsumed, "address already consumed"))
	}

	// Step 10: relay. On failure the reservation is intentionally left
	// in place with relay_tx_id="pending" (STUCK_PENDING) — no unwind,
	// no automatic retry; double-credit is worse than a stuck pending.
	mintResp, merr := c.mint.Request(ctx, req.DestinationID, tokencfg.ToCoinUnits(req.Amount))
	if merr != nil {
		msg := merr.Error()
		if uerr := c.store.UpdateClaimRequest(ctx, reqID, "failed", &msg, nil); uerr != nil {
			c.log.Warnf("failed to record claim %d upstream failure: %v", reqID, uerr)
		}
		c.log.Errorf("claim %d reserved but relay failed, balance stuck pending: %v", reqID, merr)
		return nil, merr
	}

	if err := c.store.FinalizeRelayTxID(ctx, normAddr, req.DestinationID, mintResp.TxID); err != nil {
		c.log.Errorf("claim %d relay succeeded (tx %s) but finalize write failed: %v", reqID, mintResp.TxID, err)
		return nil, err
	}

	responseBlob := string(mintResp.Raw)
	if err := c.store.UpdateClaimRequest(ctx, reqID, "success", nil, &responseBlob); err != nil {
		c.log.Warnf("failed to record claim %d success: %v", reqID, err)
	}

	return &Result{
		Address:       normAddr,
		DestinationID: req.DestinationID,
		Amount:        req.Amount,
		AmountCoins:   tokencfg.ToCoinUnits(req.Amount),
		RelayTxID:     mintResp.TxID,
		OK:            true,
	}, nil
}
