package auth

import (
	"net/http"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTokenRoundTrip(t *testing.T) {
	jm := NewJWTManager("test-secret")
	userID := primitive.NewObjectID().Hex()

	token, err := jm.GenerateToken(userID, "admin")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := jm.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != userID {
		t.Fatalf("subject mismatch: %s", claims.Subject)
	}
	if claims.Role != "admin" {
		t.Fatalf("role mismatch: %s", claims.Role)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a").GenerateToken("user", "user")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTManager("secret-b").ValidateToken(token); err == nil {
		t.Fatal("token validated with the wrong secret")
	}
}

func TestTokenRejectsGarbage(t *testing.T) {
	jm := NewJWTManager("test-secret")
	for _, bad := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := jm.ValidateToken(bad); err == nil {
			t.Fatalf("garbage token %q validated", bad)
		}
	}
}

func TestExtractTokenPrefersBearerHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "cookie-token"})

	if got := ExtractToken(req); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}
}

func TestExtractTokenFallsBackToCookie(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "cookie-token"})

	if got := ExtractToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}

	empty, _ := http.NewRequest(http.MethodGet, "/", nil)
	if got := ExtractToken(empty); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestPasswordHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}

	if !VerifyPassword(hash, "correct horse battery staple") {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword(hash, "wrong password") {
		t.Fatal("wrong password accepted")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password are identical")
	}
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	for _, bad := range []string{"", "plain", "$argon2id$v=19$m=65536,t=1,p=4$salt"} {
		if VerifyPassword(bad, "anything") {
			t.Fatalf("malformed hash %q verified", bad)
		}
	}
}
