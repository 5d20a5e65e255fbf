package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"idserver/internal/platform/config"
	"idserver/internal/session/models"
	dErrors "idserver/pkg/domain-errors"
)

type refundRequest struct {
	SessionID     string `json:"sessionId"`
	TxHash        string `json:"txHash,omitempty"`
	ChainID       int64  `json:"chainId,omitempty"`
	PayPalOrderID string `json:"paypalOrderId,omitempty"`
	To            string `json:"to,omitempty"`
}

type refundResponse struct {
	TxHash string `json:"txHash"`
}

// HTTPRefunder asks the payments service to return a session's fee.
type HTTPRefunder struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPRefunder(cfg config.PaymentsConfig) *HTTPRefunder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRefunder{
		url:    strings.TrimRight(cfg.RefundURL, "/") + "/refunds",
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// Refund returns the fee paid for session. An empty to refunds the original
// payer. It returns the refund transaction hash (or PayPal refund id).
func (r *HTTPRefunder) Refund(ctx context.Context, session *models.Session, to string) (string, error) {
	payload, err := json.Marshal(refundRequest{
		SessionID:     session.ID.String(),
		TxHash:        session.Payment.TxHash,
		ChainID:       session.Payment.ChainID,
		PayPalOrderID: session.Payment.PayPalOrderID,
		To:            to,
	})
	if err != nil {
		return "", fmt.Errorf("encode refund request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-Api-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "refund service unreachable")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return "", dErrors.Wrap(fmt.Errorf("status %d: %s", resp.StatusCode, body), dErrors.CodeUnavailable, "refund failed")
	}
	var out refundResponse
	if err := json.Unmarshal(body, &out); err != nil || out.TxHash == "" {
		return "", dErrors.New(dErrors.CodeInternal, "refund service returned no transaction hash")
	}
	return out.TxHash, nil
}
