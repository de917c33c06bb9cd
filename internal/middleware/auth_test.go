package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func issueCookie(t *testing.T, m *AuthMiddleware, userID int64) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	m.SetAuthCookie(rec, userID)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("SetAuthCookie set %d cookies, want 1", len(cookies))
	}
	return cookies[0]
}

func serveProtected(m *AuthMiddleware, next http.Handler, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware_ValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	cookie := issueCookie(t, m, 42)

	if cookie.Name != "grocermart_auth" {
		t.Fatalf("cookie name = %q, want grocermart_auth", cookie.Name)
	}

	ttl := time.Until(cookie.Expires)
	if ttl < 29*24*time.Hour || ttl > 31*24*time.Hour {
		t.Fatalf("cookie ttl = %v, want ~30 days", ttl)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		id, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id not in context")
		}
		if id != 42 {
			t.Fatalf("user id from context = %d, want 42", id)
		}
	})

	serveProtected(m, next, cookie)
	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_MissingCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	rec := serveProtected(m, next, nil)
	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_TamperedSignature(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	cookie := issueCookie(t, m, 42)

	_, signature, ok := strings.Cut(cookie.Value, ".")
	if !ok {
		t.Fatalf("cookie value %q has no signature part", cookie.Value)
	}

	// Подмена идентификатора при сохранении чужой подписи.
	cookie.Value = "1." + signature

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	rec := serveProtected(m, next, cookie)
	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_MalformedCookieValue(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	// Значение без разделителя не содержит подписи.
	rec := serveProtected(m, next, &http.Cookie{Name: "grocermart_auth", Value: "42"})
	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ForeignSecret(t *testing.T) {
	issuer := NewAuthMiddleware("secret-one")
	verifier := NewAuthMiddleware("secret-two")

	cookie := issueCookie(t, issuer, 42)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	rec := serveProtected(verifier, next, cookie)
	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
