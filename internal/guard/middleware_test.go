package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jeanikt/uniconnect/internal/middleware"
	"github.com/jeanikt/uniconnect/internal/model"
	"github.com/jeanikt/uniconnect/internal/verifier"
)

// protectedHandler は保護対象のハンドラを模し、受け取ったユーザーを記録する。
type protectedHandler struct {
	called bool
	user   *model.User
}

func (h *protectedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.user, _ = middleware.UserFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestMiddleware_UnauthenticatedPageRedirects(t *testing.T) {
	g := New(fixedResult(verifier.Result{Outcome: verifier.OutcomeUnauthenticated}))
	next := &protectedHandler{}
	h := NewMiddleware(g, Config{LoginPath: "/login"})(next)

	req := httptest.NewRequest(http.MethodGet, "/profile?tab=posts", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if next.called {
		t.Error("protected handler must not run for unauthenticated requests")
	}
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	if loc.Path != "/login" {
		t.Errorf("redirect path = %q, want /login", loc.Path)
	}
	if got := loc.Query().Get("callbackUrl"); got != "/profile?tab=posts" {
		t.Errorf("callbackUrl = %q", got)
	}
}

func TestMiddleware_UnauthenticatedAPIReturns401(t *testing.T) {
	g := New(fixedResult(verifier.Result{Outcome: verifier.OutcomeMalformed}))
	next := &protectedHandler{}
	h := NewMiddleware(g, Config{})(next)

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/app/state", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/feed", nil)
			r.Header.Set("Accept", "application/json")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", req.URL.Path, rec.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["code"] != model.ErrCodeUnauthorized {
			t.Errorf("code = %q", body["code"])
		}
	}
	if next.called {
		t.Error("protected handler must not run")
	}
}

func TestMiddleware_AuthenticatedInjectsUser(t *testing.T) {
	user := &model.User{ID: "1", Email: "a@b.com", Username: "a"}
	var gotCreds verifier.Credentials
	g := New(verifierFunc(func(ctx context.Context, creds verifier.Credentials) verifier.Result {
		gotCreds = creds
		return verifier.Result{User: user, Outcome: verifier.OutcomeAuthenticated}
	}))
	next := &protectedHandler{}
	h := NewMiddleware(g, Config{})(next)

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !next.called || next.user != user {
		t.Errorf("handler called = %v user = %+v", next.called, next.user)
	}
	if gotCreds.SessionID != "sess-1" || gotCreds.Token != "tok-1" {
		t.Errorf("credentials = %+v", gotCreds)
	}
}

func TestMiddleware_ClientGoneWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(verifierFunc(func(ctx context.Context, creds verifier.Credentials) verifier.Result {
		cancel()
		return verifier.Result{Outcome: verifier.OutcomeTransportError}
	}))
	next := &protectedHandler{}
	h := NewMiddleware(g, Config{})(next)

	req := httptest.NewRequest(http.MethodGet, "/feed", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if next.called {
		t.Error("protected handler must not run")
	}
	if rec.Header().Get("Location") != "" || rec.Body.Len() != 0 {
		t.Errorf("nothing should be written, got Location=%q body=%q", rec.Header().Get("Location"), rec.Body.String())
	}
}

func TestCredentialsFromRequest_TokenCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "cookie-token"})

	creds := CredentialsFromRequest(req)

	if creds.Token != "cookie-token" || creds.SessionID != "" {
		t.Errorf("credentials = %+v", creds)
	}
}

// TestMiddleware_WithVerifierEndToEnd は実際のVerifierとAPIサーバーを組み合わせて
// 子ハンドラに検証済みユーザーがそのまま渡ることを検証する。
func TestMiddleware_WithVerifierEndToEnd(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if c, err := r.Cookie("session_id"); err != nil || c.Value != "good" {
			w.Write([]byte(`{"authenticated":false}`))
			return
		}
		w.Write([]byte(`{"authenticated":true,"user":{"id":"1","email":"a@b.com","username":"a","is_admin":false}}`))
	}))
	defer api.Close()

	v, err := verifier.New(verifier.Config{BaseURL: api.URL, Mode: verifier.ModeCookie, Timeout: time.Second})
	if err != nil {
		t.Fatalf("verifier.New: %v", err)
	}
	h := func(next http.Handler) http.Handler { return NewMiddleware(New(v), Config{LoginPath: "/"})(next) }

	t.Run("authenticated", func(t *testing.T) {
		next := &protectedHandler{}
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "good"})
		rec := httptest.NewRecorder()
		h(next).ServeHTTP(rec, req)

		want := model.User{ID: "1", Email: "a@b.com", Username: "a"}
		if !next.called || next.user == nil || *next.user != want {
			t.Errorf("user = %+v, want %+v", next.user, want)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		next := &protectedHandler{}
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		rec := httptest.NewRecorder()
		h(next).ServeHTTP(rec, req)

		if next.called {
			t.Error("protected handler must not run")
		}
		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want 303", rec.Code)
		}
	})

	t.Run("api unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		deadURL := dead.URL
		dead.Close()
		dv, _ := verifier.New(verifier.Config{BaseURL: deadURL, Timeout: time.Second})

		next := &protectedHandler{}
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "good"})
		rec := httptest.NewRecorder()
		NewMiddleware(New(dv), Config{})(next).ServeHTTP(rec, req)

		if next.called {
			t.Error("protected handler must not run when the API is unreachable")
		}
	})
}
