package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxResponseBytes bounds how much of a provider response is read. Factor
// payloads are small; anything larger is a misbehaving upstream.
const maxResponseBytes = 1 << 20

// GetJSON performs a GET against a provider endpoint and decodes the 2xx
// response body into out. Every failure comes back as a *ProviderError so
// the adapter can classify it: transport faults map to timeout or outage,
// non-2xx statuses through StatusError, undecodable bodies to bad data.
func GetJSON(ctx context.Context, client *http.Client, providerID, rawURL string, headers http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, providerID, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(providerID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(providerID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusError(providerID, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(ErrorBadData, providerID, "decoding response", err)
	}
	return nil
}

// StatusError maps a non-2xx provider status to the normalized taxonomy.
func StatusError(providerID string, status int) *ProviderError {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusNotFound:
		return NewProviderError(ErrorNotFound, providerID, "subject not found", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrorAuthentication, providerID, msg, nil)
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrorRateLimited, providerID, msg, nil)
	case status >= 500:
		return NewProviderError(ErrorProviderOutage, providerID, msg, nil)
	default:
		return NewProviderError(ErrorContractMismatch, providerID, msg, nil)
	}
}

func transportError(providerID string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, providerID, "request deadline exceeded", err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return NewProviderError(ErrorTimeout, providerID, "request timed out", err)
	}
	return NewProviderError(ErrorProviderOutage, providerID, "request failed", err)
}
