package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for a notification body that is not JSON or lacks
// an order id.
var ErrMalformed = errors.New("malformed payment notification")

// FlexString accepts a JSON string or a JSON number and keeps its text.  The
// gateway sends status_code and gross_amount either way.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = FlexString(n.String())
	return nil
}

// Notification is the gateway's webhook body.  Raw keeps the exact bytes
// received so they can be appended to the order's audit trail.
type Notification struct {
	OrderID           string     `json:"order_id"`
	StatusCode        FlexString `json:"status_code"`
	GrossAmount       FlexString `json:"gross_amount"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status"`
	SignatureKey      string     `json:"signature_key"`
	TransactionID     string     `json:"transaction_id"`
	PaymentType       string     `json:"payment_type"`
	TransactionTime   string     `json:"transaction_time"`

	Raw json.RawMessage `json:"-"`
}

// ParseNotification decodes a webhook body.  Unknown fields are kept in Raw
// only.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n.OrderID = strings.TrimSpace(n.OrderID)
	if n.OrderID == "" {
		return Notification{}, fmt.Errorf("%w: order_id is required", ErrMalformed)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	n.Raw = compact.Bytes()
	return n, nil
}

// CanonicalStatusCode renders a status code the way the sender hashes it:
// "200" whether it arrived as 200, 200.0 or "200".
func CanonicalStatusCode(raw string) string {
	s := strings.TrimSpace(raw)
	whole, frac, ok := strings.Cut(s, ".")
	if ok && isDigits(whole) && strings.TrimRight(frac, "0") == "" {
		return whole
	}
	return s
}

// CanonicalAmount renders an amount with exactly two decimals, the way the
// sender hashes it: 150000, "150000" and "150000.00" all become
// "150000.00".  Values that cannot be normalised are returned trimmed so the
// signature check fails rather than guessing.
func CanonicalAmount(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return s
		}
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if !isDigits(whole) || (hasFrac && frac != "" && !isDigits(frac)) {
		return s
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > 2 {
		return s
	}
	for len(frac) < 2 {
		frac += "0"
	}
	whole = strings.TrimLeft(whole, "0")
	if whole == "" {
		whole = "0"
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
