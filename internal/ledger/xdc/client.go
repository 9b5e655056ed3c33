// Package xdc talks JSON-RPC to an XDC-compatible ledger gateway. The
// gateway anchors assessment records on chain; this client only sees the
// gateway's RPC surface and never signs transactions itself.
package xdc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"arbiter/internal/ledger"
	"arbiter/internal/platform/config"
)

const (
	methodSubmitRecord    = "arb_submitRecord"
	methodGetRecord       = "arb_getRecord"
	methodListSettlements = "arb_listSettlements"

	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 4 << 20
)

// Client is a JSON-RPC ledger client with bearer-token auth and a hard
// per-call timeout. Safe for concurrent use.
type Client struct {
	endpoint   string
	authToken  string
	timeout    time.Duration
	httpClient *http.Client
	seq        atomic.Int64
}

// New builds the gateway client from ledger configuration.
func New(cfg config.Ledger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		authToken:  cfg.AuthToken,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// submitParams is the gateway's record payload. The content hash lets the
// gateway verify the record it anchors matches what the engine computed.
type submitParams struct {
	ledger.Submission
	ContentHash string `json:"content_hash"`
}

// Submit anchors one submission and returns the gateway's reference.
func (c *Client) Submit(ctx context.Context, sub ledger.Submission) (ledger.Reference, error) {
	params := submitParams{Submission: sub, ContentHash: sub.Hash()}
	var ref ledger.Reference
	if err := c.call(ctx, methodSubmitRecord, params, &ref); err != nil {
		return ledger.Reference{}, err
	}
	if ref.Ref == "" {
		return ledger.Reference{}, fmt.Errorf("%w: gateway returned empty reference", ledger.ErrRejected)
	}
	return ref, nil
}

// Lookup fetches the reference for a previously anchored request.
func (c *Client) Lookup(ctx context.Context, requestID string) (ledger.Reference, error) {
	var ref *ledger.Reference
	if err := c.call(ctx, methodGetRecord, map[string]string{"request_id": requestID}, &ref); err != nil {
		return ledger.Reference{}, err
	}
	if ref == nil {
		return ledger.Reference{}, ledger.ErrNotFound
	}
	return *ref, nil
}

// Settlements lists a subject's settled invoices from the gateway.
func (c *Client) Settlements(ctx context.Context, subjectID string) ([]ledger.Settlement, error) {
	var settlements []ledger.Settlement
	if err := c.call(ctx, methodListSettlements, map[string]string{"subject_id": subjectID}, &settlements); err != nil {
		return nil, err
	}
	return settlements, nil
}

// call performs one JSON-RPC exchange, mapping transport and protocol
// failures onto the ledger sentinels.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      int(c.seq.Add(1)),
	})
	if err != nil {
		return fmt.Errorf("%w: marshaling %s request: %v", ledger.ErrRejected, method, err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building %s request: %v", ledger.ErrRejected, method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %v", ledger.ErrTimeout, method, err)
		}
		return fmt.Errorf("%w: %s: %v", ledger.ErrUnavailable, method, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: reading %s response: %v", ledger.ErrUnavailable, method, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: gateway refused credentials (status %d)", ledger.ErrRejected, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway status %d", ledger.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: gateway status %d", ledger.ErrRejected, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(payload, &rpcResp); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ledger.ErrUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return rpcErrorToSentinel(method, rpcResp.Error)
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%w: decoding %s result: %v", ledger.ErrUnavailable, method, err)
		}
	}
	return nil
}

// rpcErrorToSentinel maps the gateway's JSON-RPC error space: server errors
// (-32000 and below) are transient, everything else means the request itself
// was unacceptable.
func rpcErrorToSentinel(method string, e *rpcError) error {
	if e.Code <= -32000 && e.Code > -32100 {
		return fmt.Errorf("%w: %s: rpc %d %s", ledger.ErrUnavailable, method, e.Code, e.Message)
	}
	return fmt.Errorf("%w: %s: rpc %d %s", ledger.ErrRejected, method, e.Code, e.Message)
}
