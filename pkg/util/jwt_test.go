package util

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT(3, true, "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != 3 || !claims.IsAdmin {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ParseJWT(token, "other"); err == nil {
		t.Fatal("token accepted with wrong secret")
	}

	expired, _ := GenerateJWT(3, false, "secret", -time.Minute)
	if _, err := ParseJWT(expired, "secret"); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer abc")
	if got := ExtractToken(r, "session"); got != "abc" {
		t.Fatalf("bearer token = %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic xyz")
	if got := ExtractToken(r, "session"); got != "" {
		t.Fatalf("basic auth yielded %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Cookie", "session=fromcookie")
	if got := ExtractToken(r, "session"); got != "fromcookie" {
		t.Fatalf("cookie token = %q", got)
	}
	if got := ExtractToken(r, ""); got != "" {
		t.Fatalf("no cookie name yielded %q", got)
	}
}
