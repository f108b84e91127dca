package payment

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when a notification's signature_key does
// not match the one recomputed with the shared server key.
var ErrInvalidSignature = errors.New("invalid notification signature")

// Sign computes the gateway signature: hex(SHA-512(order_id + status_code +
// gross_amount + server_key)) over the canonical field forms.
func Sign(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + CanonicalStatusCode(statusCode) + CanonicalAmount(grossAmount) + serverKey))
	return hex.EncodeToString(sum[:])
}

// Verifier checks notifications against the shared server key.
type Verifier struct {
	serverKey string
}

// NewVerifier returns a Verifier for the given server key.
func NewVerifier(serverKey string) *Verifier { return &Verifier{serverKey: serverKey} }

// Expected returns the signature the gateway must have sent for n.
func (v *Verifier) Expected(n Notification) string {
	return Sign(n.OrderID, string(n.StatusCode), string(n.GrossAmount), v.serverKey)
}

// Verify returns ErrInvalidSignature unless n carries the expected
// signature.  An empty server key rejects everything.
func (v *Verifier) Verify(n Notification) error {
	if v.serverKey == "" {
		return ErrInvalidSignature
	}
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	want := v.Expected(n)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
