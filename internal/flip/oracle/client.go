package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome kinds. The pricing service answers "lose" for a surcharge; both
// spellings are normalized to KindSurcharge.
const (
	KindWin       = "win"
	KindSurcharge = "surcharge"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
	flipPath       = "/api/flip"
)

// Outcome is the pricing service verdict for one flip.
type Outcome struct {
	Kind       string          `json:"kind"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

// Client calls the external pricing service. It never retries and never
// produces an outcome of its own.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewClient constructs a pricing client. A zero timeout selects the default.
func NewClient(httpClient *http.Client, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
	}
}

// Timeout returns the per-call deadline.
func (c *Client) Timeout() time.Duration { return c.timeout }

type flipRequest struct {
	BasePrice json.Number `json:"base_price"`
}

type flipResponse struct {
	Outcome    string          `json:"outcome"`
	FinalPrice json.RawMessage `json:"final_price"`
}

// RequestOutcome sends exactly one flip request for the item at basePrice.
// Every failure is returned as *ServiceError.
func (c *Client) RequestOutcome(ctx context.Context, itemID string, basePrice decimal.Decimal) (Outcome, error) {
	if !basePrice.IsPositive() {
		return Outcome{}, newServiceError(ReasonRequest, 0, fmt.Errorf("item %s: base price must be positive", itemID))
	}

	body, err := json.Marshal(flipRequest{BasePrice: json.Number(basePrice.String())})
	if err != nil {
		return Outcome{}, newServiceError(ReasonRequest, 0, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+flipPath, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, newServiceError(ReasonRequest, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Outcome{}, newServiceError(ReasonTimeout, 0, err)
		}
		return Outcome{}, newServiceError(ReasonNetwork, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Outcome{}, newServiceError(ReasonStatus, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	var apiResp flipResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(&apiResp); err != nil {
		if isTimeout(err) {
			return Outcome{}, newServiceError(ReasonTimeout, resp.StatusCode, err)
		}
		return Outcome{}, newServiceError(ReasonPayload, resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	// the body must hold exactly one JSON value
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil && isTimeout(err) {
			return Outcome{}, newServiceError(ReasonTimeout, resp.StatusCode, err)
		}
		return Outcome{}, newServiceError(ReasonPayload, resp.StatusCode, errors.New("trailing data after response object"))
	}
	return parseOutcome(apiResp, resp.StatusCode)
}

func parseOutcome(apiResp flipResponse, status int) (Outcome, error) {
	var kind string
	switch apiResp.Outcome {
	case "win":
		kind = KindWin
	case "lose", "surcharge":
		kind = KindSurcharge
	default:
		return Outcome{}, newServiceError(ReasonPayload, status, fmt.Errorf("unknown outcome %q", apiResp.Outcome))
	}
	raw := bytes.TrimSpace(apiResp.FinalPrice)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Outcome{}, newServiceError(ReasonPayload, status, errors.New("final_price is missing"))
	}
	if c := raw[0]; c != '-' && (c < '0' || c > '9') {
		return Outcome{}, newServiceError(ReasonPayload, status, fmt.Errorf("final_price must be a JSON number, got %s", raw))
	}
	price, err := decimal.NewFromString(string(raw))
	if err != nil {
		return Outcome{}, newServiceError(ReasonPayload, status, fmt.Errorf("final_price: %w", err))
	}
	if !price.IsPositive() {
		return Outcome{}, newServiceError(ReasonPayload, status, fmt.Errorf("final_price must be positive, got %s", price))
	}
	return Outcome{Kind: kind, FinalPrice: price}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
