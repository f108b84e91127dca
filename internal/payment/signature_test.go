package payment

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"
)

const testServerKey = "SB-Mid-server-test"

func TestCanonicalForms(t *testing.T) {
	amounts := map[string]string{
		"150000":     "150000.00",
		"150000.00":  "150000.00",
		"150000.0":   "150000.00",
		"150000.5":   "150000.50",
		"150000.500": "150000.50",
		" 99000 ":    "99000.00",
		"1.5e5":      "150000.00",
		"0":          "0.00",
		"00120":      "120.00",
		"12.345":     "12.345",
		"abc":        "abc",
	}
	for in, want := range amounts {
		if got := CanonicalAmount(in); got != want {
			t.Fatalf("CanonicalAmount(%q)=%q, want %q", in, got, want)
		}
	}
	codes := map[string]string{"200": "200", "200.0": "200", " 201 ": "201", "4xx": "4xx"}
	for in, want := range codes {
		if got := CanonicalStatusCode(in); got != want {
			t.Fatalf("CanonicalStatusCode(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestSignMatchesGatewayFormula(t *testing.T) {
	sum := sha512.Sum512([]byte("ORD-1" + "200" + "150000.00" + testServerKey))
	want := hex.EncodeToString(sum[:])
	if got := Sign("ORD-1", "200", "150000", testServerKey); got != want {
		t.Fatalf("Sign mismatch: %s vs %s", got, want)
	}
}

func TestVerifyNumericAndStringFieldsHashIdentically(t *testing.T) {
	sig := Sign("ORD-1", "200", "150000.00", testServerKey)
	bodies := [][]byte{
		[]byte(`{"order_id":"ORD-1","status_code":"200","gross_amount":"150000.00","transaction_status":"settlement","signature_key":"` + sig + `"}`),
		[]byte(`{"order_id":"ORD-1","status_code":200,"gross_amount":150000,"transaction_status":"settlement","signature_key":"` + sig + `"}`),
		[]byte(`{"order_id":"ORD-1","status_code":200,"gross_amount":"150000","transaction_status":"settlement","signature_key":"` + sig + `"}`),
		[]byte(`{"order_id":"ORD-1","status_code":"200","gross_amount":150000.00,"transaction_status":"settlement","signature_key":"` + sig + `"}`),
	}
	v := NewVerifier(testServerKey)
	for _, body := range bodies {
		n, err := ParseNotification(body)
		if err != nil {
			t.Fatalf("parse %s: %v", body, err)
		}
		if err := v.Verify(n); err != nil {
			t.Fatalf("verify %s: %v", body, err)
		}
	}
}

func TestVerifyRejects(t *testing.T) {
	good := Sign("ORD-1", "200", "150000.00", testServerKey)
	cases := []struct {
		name string
		n    Notification
		key  string
	}{
		{"tampered amount", Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "1.00", SignatureKey: good}, testServerKey},
		{"other order", Notification{OrderID: "ORD-2", StatusCode: "200", GrossAmount: "150000.00", SignatureKey: good}, testServerKey},
		{"wrong key", Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "150000.00", SignatureKey: good}, "other"},
		{"missing signature", Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "150000.00"}, testServerKey},
		{"empty server key", Notification{OrderID: "ORD-1", StatusCode: "200", GrossAmount: "150000.00", SignatureKey: Sign("ORD-1", "200", "150000.00", "")}, ""},
	}
	for _, tt := range cases {
		if err := NewVerifier(tt.key).Verify(tt.n); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: err=%v, want ErrInvalidSignature", tt.name, err)
		}
	}
}

func TestParseNotificationMalformed(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"order_id":"  "}`, `{"order_id":"A","status_code":{}}`} {
		if _, err := ParseNotification([]byte(body)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("ParseNotification(%s) err=%v, want ErrMalformed", body, err)
		}
	}
}

func TestParseNotificationKeepsCompactRaw(t *testing.T) {
	n, err := ParseNotification([]byte("{\n  \"order_id\": \"ORD-9\",\n  \"extra\": [1, 2]\n}"))
	if err != nil {
		t.Fatal(err)
	}
	if string(n.Raw) != `{"order_id":"ORD-9","extra":[1,2]}` {
		t.Fatalf("raw=%s", n.Raw)
	}
}
