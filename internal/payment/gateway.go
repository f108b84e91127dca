package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrGatewayUnavailable is returned when the gateway status API cannot be
// reached or answers with a non-2xx status.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// ErrTransactionNotFound is returned when the gateway has no transaction for
// the order, typically because the customer never opened the payment page.
var ErrTransactionNotFound = errors.New("transaction not found at gateway")

// Gateway fetches the current transaction state of an order.  The answer has
// the same shape and signature as a webhook notification.
type Gateway interface {
	Status(ctx context.Context, orderID string) (Notification, error)
}

// HTTPGateway queries GET {base}/v2/{order_id}/status authenticated with the
// server key as the basic-auth user.
type HTTPGateway struct {
	baseURL   string
	serverKey string
	client    *http.Client
}

// NewHTTPGateway returns a gateway client.  A nil client gets a 10 second
// timeout.
func NewHTTPGateway(baseURL, serverKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		serverKey: serverKey,
		client:    client,
	}
}

// Status implements Gateway.
func (g *HTTPGateway) Status(ctx context.Context, orderID string) (Notification, error) {
	endpoint := g.baseURL + "/v2/" + url.PathEscape(orderID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Notification{}, err
	}
	req.SetBasicAuth(g.serverKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Notification{}, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusNotFound {
			return Notification{}, ErrTransactionNotFound
		}
		return Notification{}, fmt.Errorf("%w: http %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	// The status API answers 200 with the error code in the body.
	var head struct {
		StatusCode FlexString `json:"status_code"`
	}
	if err := json.Unmarshal(body, &head); err == nil && string(head.StatusCode) == "404" {
		return Notification{}, ErrTransactionNotFound
	}
	return ParseNotification(body)
}
