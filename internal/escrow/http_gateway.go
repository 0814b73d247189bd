package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/escrowd/internal/errors"
)

// HTTPGateway implements Gateway against the escrow gateway service's JSON API.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway creates an HTTPGateway for the given base URL with a per-call
// timeout.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// StartModeration submits a job manifest for content moderation.
func (g *HTTPGateway) StartModeration(ctx context.Context, jobID uuid.UUID, manifestURL string) error {
	body := map[string]string{"job_id": jobID.String(), "manifest_url": manifestURL}
	return g.post(ctx, "/v1/moderation", body, nil)
}

// GetModerationVerdict fetches the moderation outcome for a job.
func (g *HTTPGateway) GetModerationVerdict(ctx context.Context, jobID uuid.UUID) (ModerationVerdict, error) {
	var out struct {
		Verdict ModerationVerdict `json:"verdict"`
	}
	if err := g.get(ctx, fmt.Sprintf("/v1/moderation/%s", jobID), &out); err != nil {
		return "", err
	}
	return out.Verdict, nil
}

// ScanForAbuse submits a job manifest for abuse scanning.
func (g *HTTPGateway) ScanForAbuse(ctx context.Context, jobID uuid.UUID, manifestURL string) error {
	body := map[string]string{"job_id": jobID.String(), "manifest_url": manifestURL}
	return g.post(ctx, "/v1/abuse-scans", body, nil)
}

// GetAbuseVerdict fetches the abuse scan outcome for a job.
func (g *HTTPGateway) GetAbuseVerdict(ctx context.Context, jobID uuid.UUID) (AbuseVerdict, error) {
	var out struct {
		Verdict AbuseVerdict `json:"verdict"`
	}
	if err := g.get(ctx, fmt.Sprintf("/v1/abuse-scans/%s", jobID), &out); err != nil {
		return "", err
	}
	return out.Verdict, nil
}

// CreateEscrow creates and funds the escrow contract on chain.
func (g *HTTPGateway) CreateEscrow(
	ctx context.Context,
	chainID int64,
	manifestURL, manifestHash string,
) (*LaunchResult, error) {
	body := map[string]any{
		"chain_id":      chainID,
		"manifest_url":  manifestURL,
		"manifest_hash": manifestHash,
	}
	var out LaunchResult
	if err := g.post(ctx, "/v1/escrows", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetEscrowStatus fetches the current on-chain escrow status.
func (g *HTTPGateway) GetEscrowStatus(ctx context.Context, chainID int64, escrowAddress string) (Status, error) {
	var out struct {
		Status Status `json:"status"`
	}
	path := fmt.Sprintf("/v1/escrows/%d/%s", chainID, escrowAddress)
	if err := g.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// CompleteEscrow finalizes the escrow on chain.
func (g *HTTPGateway) CompleteEscrow(ctx context.Context, chainID int64, escrowAddress string) error {
	path := fmt.Sprintf("/v1/escrows/%d/%s/complete", chainID, escrowAddress)
	return g.post(ctx, path, nil, nil)
}

// CancelEscrow requests cancellation of the escrow on chain.
func (g *HTTPGateway) CancelEscrow(ctx context.Context, chainID int64, escrowAddress string) error {
	path := fmt.Sprintf("/v1/escrows/%d/%s/cancel", chainID, escrowAddress)
	return g.post(ctx, path, nil, nil)
}

// GetWebhookURL resolves an oracle's registered webhook URL from the KV store.
func (g *HTTPGateway) GetWebhookURL(ctx context.Context, chainID int64, oracleAddress string) (string, error) {
	var out struct {
		WebhookURL string `json:"webhook_url"`
	}
	path := fmt.Sprintf("/v1/kvstore/%d/%s/webhook_url", chainID, oracleAddress)
	if err := g.get(ctx, path, &out); err != nil {
		return "", err
	}
	return out.WebhookURL, nil
}

// post issues a JSON POST and decodes the response into out when provided.
func (g *HTTPGateway) post(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, "failed to encode gateway request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(err, "failed to build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")

	return g.do(req, out)
}

// get issues a GET and decodes the response into out.
func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return apperrors.Wrap(err, "failed to build gateway request")
	}

	return g.do(req, out)
}

// do executes the request, mapping transport errors and non-2xx responses to
// the recoverable external-call error class.
func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExternalCall, err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.Wrap(
			apperrors.ErrExternalCall,
			fmt.Sprintf("gateway returned status %d for %s", resp.StatusCode, req.URL.Path),
		)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrExternalCall, "failed to decode gateway response")
	}
	return nil
}
