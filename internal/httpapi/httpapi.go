// Package httpapi is the claim HTTP surface: four JSON endpoints (balance,
// request, stats, and the per-address claim log) plus a health check, wired
// over net/http.ServeMux with handlers bound to a server struct.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/decred/slog"

	"github.com/alpha-labs/alpha-faucet/internal/addr"
	"github.com/alpha-labs/alpha-faucet/internal/claim"
	"github.com/alpha-labs/alpha-faucet/internal/ferr"
	"github.com/alpha-labs/alpha-faucet/internal/store"
	"github.com/alpha-labs/alpha-faucet/internal/tokencfg"
)

// Server wires the claim coordinator and store to the HTTP surface.
type Server struct {
	store       *store.Store
	codec       addr.Codec
	coordinator *claim.Coordinator
	corsOrigin  string
	log         slog.Logger

	mux *http.ServeMux
}

// New builds a Server and registers its routes.
func New(st *store.Store, codec addr.Codec, coordinator *claim.Coordinator, corsOrigin string, log slog.Logger) *Server {
	s := &Server{
		store:       st,
		codec:       codec,
		coordinator: coordinator,
		corsOrigin:  corsOrigin,
		log:         log,
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/v1/faucet/balance/", s.handleBalance)
	s.mux.HandleFunc("/api/v1/faucet/request", s.handleRequest)
	s.mux.HandleFunc("/api/v1/faucet/stats", s.handleStats)
	s.mux.HandleFunc("/api/v1/faucet/claims/", s.handleClaims)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handler returns the wrapped mux with CORS and request logging applied,
// suitable for http.Server.Handler.
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.withCORS(s.mux))
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Infof("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, log slog.Logger, err error) {
	kind := ferr.KindOf(err)
	status := ferr.HTTPStatus(kind)
	log.Warnf("request failed: %v", err)
	msg := "internal error"
	if fe, ok := ferr.As(err); ok {
		msg = fe.Message
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

type balanceResponse struct {
	Success                   bool    `json:"success"`
	ID                        string  `json:"id"`
	Name                      string  `json:"name"`
	Symbol                    string  `json:"symbol"`
	Decimals                  int     `json:"decimals"`
	Description               string  `json:"description"`
	L1Addr                    string  `json:"l1_addr"`
	UnicityID                 *string `json:"unicityId"`
	Amount                    float64 `json:"amount"`
	AmountInSmallUnits        uint64  `json:"amountInSmallUnits"`
	InitialAmount             float64 `json:"initialAmount"`
	InitialAmountInSmallUnits uint64  `json:"initialAmountInSmallUnits"`
	Spent                     bool    `json:"spent"`
	InSnapshot                bool    `json:"inSnapshot"`
	MintedAt                  *string `json:"mintedAt,omitempty"`
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addrRaw := strings.TrimPrefix(r.URL.Path, "/api/v1/faucet/balance/")
	val := s.codec.Validate(addrRaw)
	if !val.Valid {
		writeError(w, s.log, ferr.New(ferr.InvalidAddress, "%s", val.Reason))
		return
	}

	row, err := s.store.Find(r.Context(), val.Normalized)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if row == nil {
		writeJSON(w, http.StatusOK, balanceResponse{
			Success:    true,
			ID:         tokencfg.ID,
			Name:       tokencfg.Name,
			Symbol:     tokencfg.Symbol,
			Decimals:   tokencfg.Decimals,
			Description: tokencfg.Description,
			L1Addr:     val.Normalized,
			InSnapshot: false,
		})
		return
	}

	var mintedAt *string
	if row.ConsumedAt != nil {
		formatted := row.ConsumedAt.Format(time.RFC3339)
		mintedAt = &formatted
	}

	var remaining uint64
	if !row.Consumed {
		remaining = row.InitialAmount
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Success:                   true,
		ID:                        tokencfg.ID,
		Name:                      tokencfg.Name,
		Symbol:                    tokencfg.Symbol,
		Decimals:                  tokencfg.Decimals,
		Description:               tokencfg.Description,
		L1Addr:                    row.L1Address,
		UnicityID:                 row.DestinationID,
		Amount:                    tokencfg.ToCoinUnits(remaining),
		AmountInSmallUnits:        remaining,
		InitialAmount:             tokencfg.ToCoinUnits(row.InitialAmount),
		InitialAmountInSmallUnits: row.InitialAmount,
		Spent:                     row.Consumed,
		InSnapshot:                true,
		MintedAt:                  mintedAt,
	})
}

type requestBody struct {
	L1Addr    string `json:"l1_addr"`
	UnicityID string `json:"unicityId"`
	Amount    int64  `json:"amount"`
	Signature string `json:"signature"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, s.log, ferr.New(ferr.InvalidInput, "method not allowed"))
		return
	}

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, s.log, ferr.Wrap(ferr.InvalidInput, err, "malformed request body"))
		return
	}
	if body.Amount < 1 {
		writeError(w, s.log, ferr.New(ferr.InvalidInput, "amount must be an integer >= 1"))
		return
	}

	res, err := s.coordinator.Claim(r.Context(), claim.Request{
		L1Address:     body.L1Addr,
		DestinationID: body.UnicityID,
		Amount:        uint64(body.Amount),
		SignatureHex:  body.Signature,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type statsResponse struct {
	Success            bool   `json:"success"`
	SnapshotBlock       int64  `json:"snapshotBlock"`
	TotalAddresses      int64  `json:"totalAddresses"`
	AvailableAddresses  int64  `json:"availableAddresses"`
	MintedAddresses     int64  `json:"mintedAddresses"`
	CreatedAt           string `json:"createdAt"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.GetSnapshotMeta(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	total, err := s.store.CountTotal(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	available, err := s.store.CountUnconsumed(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	var blockHeight int64
	var createdAt string
	if meta != nil {
		blockHeight = meta.BlockHeight
		createdAt = meta.CreatedAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Success:            true,
		SnapshotBlock:      blockHeight,
		TotalAddresses:     total,
		AvailableAddresses: available,
		MintedAddresses:    total - available,
		CreatedAt:          createdAt,
	})
}

type claimLogEntry struct {
	ID               int64   `json:"id"`
	DestinationID    string  `json:"destinationId"`
	Amount           uint64  `json:"amount"`
	Status           string  `json:"status"`
	ErrorMessage     *string `json:"errorMessage,omitempty"`
	UpstreamResponse *string `json:"upstreamResponse,omitempty"`
}

type claimsResponse struct {
	Success bool            `json:"success"`
	L1Addr  string          `json:"l1_addr"`
	Claims  []claimLogEntry `json:"claims"`
}

// handleClaims is the operator-facing audit log lookup used to reconcile a
// balance stuck pending after an upstream relay failure.
func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	addrRaw := strings.TrimPrefix(r.URL.Path, "/api/v1/faucet/claims/")
	val := s.codec.Validate(addrRaw)
	if !val.Valid {
		writeError(w, s.log, ferr.New(ferr.InvalidAddress, "%s", val.Reason))
		return
	}

	rows, err := s.store.ListClaimRequests(r.Context(), val.Normalized)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	claims := make([]claimLogEntry, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, claimLogEntry{
			ID:               row.ID,
			DestinationID:    row.DestinationID,
			Amount:           row.Amount,
			Status:           row.Status,
			ErrorMessage:     row.ErrorMessage,
			UpstreamResponse: row.UpstreamResponse,
		})
	}

	writeJSON(w, http.StatusOK, claimsResponse{
		Success: true,
		L1Addr:  val.Normalized,
		Claims:  claims,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
