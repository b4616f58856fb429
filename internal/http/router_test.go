package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/medledger/internal/audit"
	"github.com/geocoder89/medledger/internal/auth"
	"github.com/geocoder89/medledger/internal/config"
	"github.com/geocoder89/medledger/internal/db"
	httpx "github.com/geocoder89/medledger/internal/http"
	"github.com/geocoder89/medledger/internal/ledger"
	"github.com/geocoder89/medledger/internal/observability"
	"github.com/geocoder89/medledger/internal/records"
	"github.com/geocoder89/medledger/internal/repo/memory"
	"github.com/geocoder89/medledger/internal/security"
	"github.com/geocoder89/medledger/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

type app struct {
	t *testing.T
	h http.Handler
}

func newApp(t *testing.T) *app {
	t.Helper()

	cfg := config.Config{
		Env:                "test",
		AdminEmail:         "admin@medledger.test",
		AdminPassword:      "admin-password",
		AdminName:          "Admin",
		LoginRatePerMinute: 1000,
		MaxBodyBytes:       1 << 20,
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	tokens, err := auth.NewManager("router-test-secret", "HS256", 0)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	store := memory.NewStore()
	hasher := security.BcryptHasher{Cost: bcrypt.MinCost}

	if err := db.EnsureAdminUser(context.Background(), store.Users(), hasher, cfg); err != nil {
		t.Fatalf("EnsureAdminUser: %v", err)
	}

	auditLog := audit.NewLog(ledger.NewGuarded(ledger.NewMemoryLedger(), ledger.GuardConfig{}), log, prom)

	router := httpx.NewRouter(log, cfg, httpx.Deps{
		Users:    users.NewService(store.Users(), hasher, tokens, prom, log),
		Records:  records.NewService(store.Users(), store.Records(), auditLog, prom, log),
		Audit:    auditLog,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
	})

	return &app{t: t, h: router}
}

func (a *app) call(method, path, token string, body any, out any) int {
	a.t.Helper()

	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)

	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: unmarshal: %v body=%s", method, path, err, w.Body.String())
		}
	}

	return w.Code
}

func (a *app) signup(name, email, role string) int64 {
	a.t.Helper()

	var u struct {
		ID int64 `json:"id"`
	}

	code := a.call(http.MethodPost, "/users", "", map[string]string{
		"name": name, "email": email, "password": "long-enough-pw", "role": role,
	}, &u)

	if code != http.StatusCreated {
		a.t.Fatalf("signup %s: status %d", email, code)
	}
	return u.ID
}

func (a *app) login(email, password string) string {
	a.t.Helper()

	var res struct {
		AccessToken string `json:"accessToken"`
	}

	if code := a.call(http.MethodPost, "/login", "", map[string]string{"email": email, "password": password}, &res); code != http.StatusOK {
		a.t.Fatalf("login %s: status %d", email, code)
	}
	return res.AccessToken
}

func TestRecordLifecycle(t *testing.T) {
	a := newApp(t)

	patientID := a.signup("Pat", "pat@medledger.test", "patient")
	a.signup("Dora", "dora@medledger.test", "doctor")
	a.signup("Dan", "dan@medledger.test", "doctor")

	patient := a.login("pat@medledger.test", "long-enough-pw")
	dora := a.login("dora@medledger.test", "long-enough-pw")
	dan := a.login("dan@medledger.test", "long-enough-pw")
	admin := a.login("admin@medledger.test", "admin-password")

	var me struct {
		ID   int64  `json:"id"`
		Role string `json:"role"`
	}
	if code := a.call(http.MethodGet, "/me", patient, nil, &me); code != http.StatusOK || me.ID != patientID || me.Role != "patient" {
		t.Fatalf("me: got %d %+v", code, me)
	}

	if code := a.call(http.MethodGet, "/records", admin, nil, nil); code != http.StatusNotFound {
		t.Fatalf("empty ViewAll: got %d, want 404", code)
	}

	var rec struct {
		ID       int64 `json:"id"`
		DoctorID int64 `json:"doctorId"`
	}
	if code := a.call(http.MethodPost, "/records", dora, map[string]any{"patientId": patientID, "details": "sprained ankle"}, &rec); code != http.StatusCreated {
		t.Fatalf("create: got %d", code)
	}

	if code := a.call(http.MethodPost, "/records", patient, map[string]any{"patientId": patientID, "details": "self-diagnosis"}, nil); code != http.StatusForbidden {
		t.Fatalf("patient create: got %d, want 403", code)
	}

	if code := a.call(http.MethodPost, "/records", dora, map[string]any{"patientId": 999, "details": "x"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown patient: got %d, want 404", code)
	}

	recPath := fmt.Sprintf("/records/%d", rec.ID)

	if code := a.call(http.MethodPut, recPath, dan, map[string]any{"details": "overwritten"}, nil); code != http.StatusForbidden {
		t.Fatalf("other doctor update: got %d, want 403", code)
	}

	if code := a.call(http.MethodGet, fmt.Sprintf("/records/patient/%d", patientID), dan, nil, nil); code != http.StatusOK {
		t.Fatalf("doctor views patient: got %d", code)
	}

	if code := a.call(http.MethodPut, recPath, dora, map[string]any{"details": "ankle healing"}, nil); code != http.StatusOK {
		t.Fatalf("update: got %d", code)
	}

	if code := a.call(http.MethodDelete, fmt.Sprintf("/users/%d", rec.DoctorID), admin, nil, nil); code != http.StatusForbidden {
		t.Fatalf("delete referenced doctor: got %d, want 403", code)
	}

	var deleted struct {
		Message string `json:"message"`
	}
	if code := a.call(http.MethodDelete, recPath, dora, nil, &deleted); code != http.StatusOK {
		t.Fatalf("delete: got %d", code)
	}

	var history struct {
		Items []struct {
			Action string `json:"action"`
			Seq    uint64 `json:"seq"`
		} `json:"items"`
	}
	auditPath := fmt.Sprintf("/audit/%d?order=asc", patientID)
	if code := a.call(http.MethodGet, auditPath, patient, nil, &history); code != http.StatusOK {
		t.Fatalf("history: got %d", code)
	}

	want := []string{"Created", "Viewed", "Updated", "Deleted"}
	if len(history.Items) != len(want) {
		t.Fatalf("history = %+v, want %v", history.Items, want)
	}
	for i, e := range history.Items {
		if e.Action != want[i] || e.Seq != uint64(i) {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}

	if code := a.call(http.MethodGet, auditPath, dora, nil, nil); code != http.StatusForbidden {
		t.Fatalf("doctor reads audit: got %d, want 403", code)
	}

	var verify struct {
		Intact  bool   `json:"intact"`
		Entries uint64 `json:"entries"`
	}
	if code := a.call(http.MethodGet, fmt.Sprintf("/audit/%d/verify", patientID), admin, nil, &verify); code != http.StatusOK {
		t.Fatalf("verify: got %d", code)
	}
	if !verify.Intact || verify.Entries != 4 {
		t.Fatalf("verify = %+v", verify)
	}
}

func TestAuthBoundaries(t *testing.T) {
	a := newApp(t)

	if code := a.call(http.MethodGet, "/records", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", code)
	}

	if code := a.call(http.MethodGet, "/records", "not-a-jwt", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("garbage token: got %d, want 401", code)
	}

	if code := a.call(http.MethodPost, "/login", "", map[string]string{"email": "admin@medledger.test", "password": "wrong"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad password: got %d, want 401", code)
	}

	if code := a.call(http.MethodPost, "/users", "", map[string]string{
		"name": "Eve", "email": "admin@medledger.test", "password": "long-enough-pw", "role": "patient",
	}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate email: got %d, want 409", code)
	}

	if code := a.call(http.MethodPost, "/users", "", map[string]string{
		"name": "Eve", "email": "eve@medledger.test", "password": "long-enough-pw", "role": "admin",
	}, nil); code != http.StatusBadRequest {
		t.Fatalf("self-assigned admin: got %d, want 400", code)
	}

	if code := a.call(http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("healthz: got %d", code)
	}

	if code := a.call(http.MethodGet, "/metrics", "", nil, nil); code != http.StatusOK {
		t.Fatalf("metrics: got %d", code)
	}
}
