// Package mintclient calls the upstream mint service as an external black
// box: a plain JSON-over-HTTP request carrying the destination identifier
// and a coin-unit amount.
package mintclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/alpha-labs/alpha-faucet/internal/ferr"
)

// DefaultTimeout bounds how long a single relay attempt may block.
const DefaultTimeout = 30 * time.Second

// Client relays mint requests to a single upstream base URL.
type Client struct {
	baseURL string
	coin    string
	http    *http.Client
}

// New builds a client against baseURL, labeling every request with coin
// (the token name sent in the mint payload).
func New(baseURL, coin string) *Client {
	return &Client{
		baseURL: baseURL,
		coin:    coin,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

type requestBody struct {
	UnicityID string  `json:"unicityId"`
	Coin      string  `json:"coin"`
	Amount    float64 `json:"amount"`
}

// Response is the subset of the upstream's JSON body the coordinator cares
// about. The relay tx id is taken from data.requestId if present, else
// txId, else the literal "unknown".
type Response struct {
	TxID string          `json:"-"`
	Raw  json.RawMessage `json:"-"`
}

type responseEnvelope struct {
	Data struct {
		RequestID string `json:"requestId"`
	} `json:"data"`
	TxID string `json:"txId"`
}

// Request relays a single claim to the upstream mint. Any status other than
// 200, a network error, or a timeout surfaces as ferr.UpstreamFailure; the caller is
// responsible for leaving the reservation in place.
func (c *Client) Request(ctx context.Context, destinationID string, coinAmount float64) (*Response, error) {
	body, err := json.Marshal(requestBody{UnicityID: destinationID, Coin: c.coin, Amount: coinAmount})
	if err != nil {
		return nil, ferr.Wrap(ferr.Internal, err, "encode mint request")
	}

	url := c.baseURL + "/api/v1/faucet/request"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, ferr.Wrap(ferr.UpstreamFailure, err, "build mint request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, ferr.Wrap(ferr.UpstreamFailure, err, "mint request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferr.Wrap(ferr.UpstreamFailure, err, "read mint response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ferr.New(ferr.UpstreamFailure, "mint request returned status %d: %s", resp.StatusCode, string(raw))
	}

	var env responseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ferr.Wrap(ferr.UpstreamFailure, err, "decode mint response")
	}

	txID := "unknown"
	switch {
	case env.Data.RequestID != "":
		txID = env.Data.RequestID
	case env.TxID != "":
		txID = env.TxID
	}

	return &Response{TxID: txID, Raw: json.RawMessage(raw)}, nil
}
