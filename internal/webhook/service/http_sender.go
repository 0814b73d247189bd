// Package service provides the HTTP delivery mechanism for outbound webhooks.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/escrow"
	"github.com/allisson/escrowd/internal/signing"
	"github.com/allisson/escrowd/internal/webhook/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Webhook-Signature"

// HTTPSender delivers webhooks over HTTP. The target URL is resolved per
// delivery through the escrow gateway's KV-store lookup, since oracles can
// rotate their endpoints on chain.
type HTTPSender struct {
	gateway escrow.Gateway
	signer  signing.Signer
	client  *http.Client
}

// NewHTTPSender creates an HTTPSender. The signer may be nil when no signing
// key is configured; webhooks flagged for signing then fail delivery instead
// of going out unsigned.
func NewHTTPSender(gateway escrow.Gateway, signer signing.Signer, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		gateway: gateway,
		signer:  signer,
		client:  &http.Client{Timeout: timeout},
	}
}

// Send delivers one webhook to its target oracle. Any status outside 2xx is an
// error so the caller reschedules the delivery.
func (s *HTTPSender) Send(ctx context.Context, webhook *domain.Webhook) error {
	url, err := s.gateway.GetWebhookURL(ctx, webhook.ChainID, webhook.OracleAddress)
	if err != nil {
		return err
	}
	if url == "" {
		return apperrors.Wrap(apperrors.ErrExternalCall, "oracle has no webhook url registered")
	}

	payload := domain.Payload{
		ChainID:       webhook.ChainID,
		EscrowAddress: webhook.EscrowAddress,
		EventType:     webhook.EventType,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	if webhook.HasSignature {
		if s.signer == nil {
			return apperrors.New("webhook requires a signature but no signing key is configured")
		}
		req.Header.Set(SignatureHeader, s.signer.Sign(body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExternalCall, err.Error())
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.Wrap(
			apperrors.ErrExternalCall,
			fmt.Sprintf("oracle returned status %d", resp.StatusCode),
		)
	}

	return nil
}
