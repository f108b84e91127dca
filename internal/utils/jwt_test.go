package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", 12, "CUSTOMER", 30*time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"].(float64) != 12 || claims["role"] != "CUSTOMER" {
		t.Fatalf("claims %v", claims)
	}
	exp, _ := claims.GetExpirationTime()
	if exp.Unix() != tok.Exp.Unix() {
		t.Fatalf("exp %v, want %v", exp, tok.Exp)
	}
	if d := time.Until(tok.Exp); d < 29*time.Minute || d > 31*time.Minute {
		t.Fatalf("ttl %v", d)
	}
}
