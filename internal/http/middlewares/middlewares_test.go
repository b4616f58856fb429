package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/medledger/internal/actorctx"
	"github.com/geocoder89/medledger/internal/apperr"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	verifyFn func(token string) (*auth.Claims, error)
}

func (f fakeVerifier) Verify(token string) (*auth.Claims, error) { return f.verifyFn(token) }

type fakeResolver struct {
	resolveFn func(ctx context.Context, claims *auth.Claims) (authz.Actor, error)
}

func (f fakeResolver) ResolveActor(ctx context.Context, claims *auth.Claims) (authz.Actor, error) {
	return f.resolveFn(ctx, claims)
}

func TestRequireAuth(t *testing.T) {
	doctor := authz.Actor{ID: 7, Role: user.RoleDoctor}

	verifier := fakeVerifier{verifyFn: func(token string) (*auth.Claims, error) {
		switch token {
		case "good", "orphan":
			return &auth.Claims{Role: "doctor"}, nil
		case "old":
			return nil, auth.ErrExpired
		}
		return nil, auth.ErrInvalidSignature
	}}

	resolver := fakeResolver{resolveFn: func(ctx context.Context, claims *auth.Claims) (authz.Actor, error) {
		return doctor, nil
	}}

	tests := []struct {
		name     string
		header   string
		resolver ActorResolver
		want     int
	}{
		{name: "valid", header: "Bearer good", resolver: resolver, want: http.StatusOK},
		{name: "missing header", header: "", resolver: resolver, want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", resolver: resolver, want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer old", resolver: resolver, want: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer forged", resolver: resolver, want: http.StatusUnauthorized},
		{
			name:   "user gone",
			header: "Bearer orphan",
			resolver: fakeResolver{resolveFn: func(ctx context.Context, claims *auth.Claims) (authz.Actor, error) {
				return authz.Actor{}, apperr.Unauthenticated("unknown_subject", "user no longer exists")
			}},
			want: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/me", NewAuthMiddleware(verifier, tt.resolver).RequireAuth(), func(c *gin.Context) {
				a, ok := ActorFromContext(c)
				if !ok || a != doctor {
					t.Fatalf("actor missing from gin context: %+v", a)
				}
				if a2, ok := actorctx.From(c.Request.Context()); !ok || a2 != doctor {
					t.Fatalf("actor missing from request context: %+v", a2)
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := hit("10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, w.Code)
		}
	}

	w := hit("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "30" {
		t.Fatalf("Retry-After = %q, want 30", w.Header().Get("Retry-After"))
	}

	if w := hit("10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("other client limited: %d", w.Code)
	}

	now = now.Add(31 * time.Second)

	if w := hit("10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("token should have refilled, got %d", w.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://clinic.example/"}))
	r.GET("/records", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{name: "allowed simple request", method: http.MethodGet, origin: "https://clinic.example", wantStatus: http.StatusOK, wantOrigin: "https://clinic.example"},
		{name: "allowed preflight", method: http.MethodOptions, origin: "https://clinic.example", wantStatus: http.StatusNoContent, wantOrigin: "https://clinic.example"},
		{name: "foreign preflight", method: http.MethodOptions, origin: "https://evil.example", wantStatus: http.StatusForbidden},
		{name: "foreign simple request", method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/records", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Fatalf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestBodyGuards(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(16), RequireJSON())
	r.POST("/login", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/records/1", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{name: "json", method: http.MethodPost, path: "/login", contentType: "application/json", body: `{}`, want: http.StatusOK},
		{name: "json with charset", method: http.MethodPost, path: "/login", contentType: "application/json; charset=utf-8", body: `{}`, want: http.StatusOK},
		{name: "form", method: http.MethodPost, path: "/login", contentType: "application/x-www-form-urlencoded", body: "a=b", want: http.StatusUnsupportedMediaType},
		{name: "missing type", method: http.MethodPost, path: "/login", body: `{}`, want: http.StatusUnsupportedMediaType},
		{name: "declared too large", method: http.MethodPost, path: "/login", contentType: "application/json", body: strings.Repeat("x", 17), want: http.StatusRequestEntityTooLarge},
		{name: "delete needs no type", method: http.MethodDelete, path: "/records/1", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestID)) })

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "adopted", incoming: "req-123", keep: true},
		{name: "minted when absent"},
		{name: "minted when too long", incoming: strings.Repeat("a", 65)},
		{name: "minted when unprintable", incoming: "bad id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			if tt.incoming != "" {
				req.Header.Set("X-Request-Id", tt.incoming)
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-Id")
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q disagree", got, w.Body.String())
			}
			if (got == tt.incoming) != tt.keep {
				t.Fatalf("id = %q, incoming %q, keep %v", got, tt.incoming, tt.keep)
			}
		})
	}
}
