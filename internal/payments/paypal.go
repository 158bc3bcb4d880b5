package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
)

// PayPalClient drives the PayPal Orders v2 REST API. Access tokens come from
// the client-credentials grant and are cached until shortly before expiry.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalClient(baseURL, clientID, clientSecret string) *PayPalClient {
	return &PayPalClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *PayPalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error building token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error requesting access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error decoding token response: %w", err)
	}

	c.accessToken = body.AccessToken
	// Renew a minute early so in-flight calls never carry an expired token.
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

// CreateOrder registers a capture-intent order for the donation amount.
func (c *PayPalClient) CreateOrder(ctx context.Context, amount int, currency string) (Order, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": currency,
				"value":         fmt.Sprintf("%d.00", amount),
			},
		}},
	}

	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.post(ctx, "/v2/checkout/orders", payload, &body); err != nil {
		return Order{}, err
	}

	log.Debugf("PayPal order %s created (%d %s)", body.ID, amount, currency)
	return Order{ID: body.ID, Status: body.Status}, nil
}

// CaptureOrder captures an approved order. PayPal reports declines with a 422
// and an order status other than COMPLETED; both map to ErrPaymentDeclined so
// the workflow runs its compensation path.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (Capture, error) {
	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			PayerID string `json:"payer_id"`
		} `json:"payer"`
	}
	err := c.post(ctx, "/v2/checkout/orders/"+orderID+"/capture", struct{}{}, &body)
	if err != nil {
		return Capture{}, err
	}

	if body.Status != OrderCompleted {
		log.Warnf("PayPal capture for order %s returned status %s", orderID, body.Status)
		return Capture{OrderID: body.ID, Status: body.Status}, apperrors.ErrPaymentDeclined
	}

	return Capture{OrderID: body.ID, Status: body.Status, PayerID: body.Payer.PayerID}, nil
}

func (c *PayPalClient) post(ctx context.Context, path string, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling payment provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.ErrPaymentDeclined
	case resp.StatusCode >= 400:
		return fmt.Errorf("payment provider returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding provider response: %w", err)
	}
	return nil
}
