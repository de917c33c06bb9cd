// Package payment предоставляет клиент платёжного шлюза.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом и проверку
// подписи платежа общим секретом.
type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

// GatewayOrder описывает платёжный ордер, созданный шлюзом.
type GatewayOrder struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
}

// NewClient создаёт клиент платёжного шлюза по указанному адресу и секрету подписи.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// CreateOrder создаёт платёжный ордер на указанную сумму.
func (c *Client) CreateOrder(ctx context.Context, amount float64, receipt string) (*GatewayOrder, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("payment client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload, err := json.Marshal(map[string]any{
		"amount_cents": int64(amount * 100),
		"currency":     "INR",
		"receipt":      receipt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// VerifySignature проверяет подпись завершённого платежа: HMAC-SHA256
// от строки "orderID|paymentID" на общем секрете.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	if c == nil || len(c.secret) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
