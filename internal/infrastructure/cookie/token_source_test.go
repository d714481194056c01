package cookie

import (
	"encoding/base64"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const providerURL = "http://idp.local"

func newTestSource(t *testing.T) (*Source, http.CookieJar) {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	src, err := NewSource(jar, providerURL, "testref", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return src, jar
}

func setCookie(t *testing.T, jar http.CookieJar, name, value string) {
	t.Helper()
	u, _ := url.Parse(providerURL)
	jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

func TestSource_PlainJSONPayload(t *testing.T) {
	src, jar := newTestSource(t)
	setCookie(t, jar, "sb-testref-auth-token", url.QueryEscape(`{"access_token":"tok-123"}`))

	tok, ok := src.Token()
	if !ok || tok != "tok-123" {
		t.Fatalf("expected tok-123, got %q (ok=%v)", tok, ok)
	}
}

func TestSource_Base64Payload(t *testing.T) {
	src, jar := newTestSource(t)
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"access_token":"tok-b64"}`))
	setCookie(t, jar, "sb-testref-auth-token", "base64-"+payload)

	tok, ok := src.Token()
	if !ok || tok != "tok-b64" {
		t.Fatalf("expected tok-b64, got %q (ok=%v)", tok, ok)
	}
}

func TestSource_AbsentCookieIsAMiss(t *testing.T) {
	src, _ := newTestSource(t)

	if _, ok := src.Token(); ok {
		t.Fatalf("no cookie must read as no token")
	}
}

func TestSource_GarbagePayloadIsAMiss(t *testing.T) {
	src, jar := newTestSource(t)
	setCookie(t, jar, "sb-testref-auth-token", "%%%not-json%%%")

	if _, ok := src.Token(); ok {
		t.Fatalf("unparseable cookie must read as no token")
	}
}

func TestSource_WrongCookieNameIgnored(t *testing.T) {
	src, jar := newTestSource(t)
	setCookie(t, jar, "sb-otherref-auth-token", url.QueryEscape(`{"access_token":"tok-123"}`))

	if _, ok := src.Token(); ok {
		t.Fatalf("cookie for another project ref must be ignored")
	}
}

func TestSource_ExpiredJWTDiscarded(t *testing.T) {
	src, jar := newTestSource(t)

	claims := jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	setCookie(t, jar, "sb-testref-auth-token", url.QueryEscape(`{"access_token":"`+signed+`"}`))

	if _, ok := src.Token(); ok {
		t.Fatalf("a token known to be expired must not be handed out")
	}
}

func TestSource_OpaqueTokenPassesThrough(t *testing.T) {
	src, jar := newTestSource(t)
	setCookie(t, jar, "sb-testref-auth-token", url.QueryEscape(`{"access_token":"opaque-not-a-jwt"}`))

	tok, ok := src.Token()
	if !ok || tok != "opaque-not-a-jwt" {
		t.Fatalf("non-JWT tokens are opaque and must pass through, got %q (ok=%v)", tok, ok)
	}
}

func TestSource_ClearRemovesToken(t *testing.T) {
	src, jar := newTestSource(t)
	setCookie(t, jar, "sb-testref-auth-token", url.QueryEscape(`{"access_token":"tok-123"}`))

	src.Clear()

	if _, ok := src.Token(); ok {
		t.Fatalf("cleared cookie must read as no token")
	}
}
