package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lv-goldex/internal/auth"
	"lv-goldex/internal/commission"
	"lv-goldex/internal/model"
	"lv-goldex/internal/notify"
	"lv-goldex/internal/tradingmode"

	"github.com/gorilla/websocket"
)

type fakeTokens map[string]auth.Identity

func (f fakeTokens) ParseToken(token string) (auth.Identity, error) {
	id, ok := f[token]
	if !ok {
		return auth.Identity{}, errors.New("invalid token")
	}
	return id, nil
}

type fakeMode struct {
	mode    model.TradingMode
	setBy   string
	updates int
}

func (f *fakeMode) Get(context.Context) (model.TradingMode, error) { return f.mode, nil }

func (f *fakeMode) Set(_ context.Context, paused bool, message, updatedBy string, expected int64) (model.TradingMode, error) {
	f.mode = model.TradingMode{TradingPaused: paused, Message: message, Version: expected + 1, UpdatedBy: updatedBy}
	f.setBy = updatedBy
	f.updates++
	return f.mode, nil
}

type fakeRules []model.CommissionRule

func (f fakeRules) List(context.Context) ([]model.CommissionRule, error) { return f, nil }

// memUsers mirrors notify.UserDirectory over a map.
type memUsers struct {
	mu    sync.Mutex
	roles map[string]string
	fail  error
}

func (m *memUsers) Record(_ context.Context, id auth.Identity) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.roles == nil {
		m.roles = make(map[string]string)
	}
	m.roles[id.UserID] = id.Role()
	return nil
}

func (m *memUsers) AdminIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, role := range m.roles {
		if role == auth.RoleAdmin {
			out = append(out, id)
		}
	}
	return out, nil
}

type captureSink struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Send(_ context.Context, n model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

var tokens = fakeTokens{
	"user":  {UserID: "u1"},
	"admin": {UserID: "a1", IsAdmin: true},
}

func newTestRouter(mode *fakeMode) http.Handler {
	return newTestRouterWithUsers(mode, nil)
}

func newTestRouterWithUsers(mode *fakeMode, users IdentityRecorder) http.Handler {
	return NewRouter(RouterDeps{
		Tokens:     tokens,
		Users:      users,
		Mode:       tradingmode.NewHandler(mode),
		Commission: commission.NewHandler(fakeRules{{ID: "r1"}}),
		Origin:     "*",
	})
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	mode := &fakeMode{}
	h := newTestRouter(mode)
	body := `{"trading_paused":true,"message":"maintenance","version":0}`

	if rec := do(h, http.MethodPut, "/v1/admin/system/mode", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPut, "/v1/admin/system/mode", "bogus", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
	if rec := do(h, http.MethodPut, "/v1/admin/system/mode", "user", body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
	if mode.updates != 0 {
		t.Fatalf("mode changed by unauthorized caller")
	}

	rec := do(h, http.MethodPut, "/v1/admin/system/mode", "admin", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mode.setBy != "a1" || !mode.mode.TradingPaused {
		t.Fatalf("admin id not forwarded: %+v", mode)
	}

	rec = do(h, http.MethodGet, "/v1/system/mode", "", "")
	var got model.TradingMode
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || !got.TradingPaused || got.Version != 1 {
		t.Fatalf("unexpected public mode %s", rec.Body.String())
	}

	if rec := do(h, http.MethodGet, "/v1/admin/commission-rules", "admin", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for rules, got %d", rec.Code)
	}
}

func TestAuthenticatedCallersReachAdminNotifications(t *testing.T) {
	users := &memUsers{}
	h := newTestRouterWithUsers(&fakeMode{}, users)

	if rec := do(h, http.MethodGet, "/v1/admin/commission-rules", "admin", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// A plain user hitting an admin route is still recorded, as a user.
	if rec := do(h, http.MethodGet, "/v1/admin/commission-rules", "user", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/v1/admin/commission-rules", "bogus", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	ids, _ := users.AdminIDs(context.Background())
	if len(ids) != 1 || ids[0] != "a1" {
		t.Fatalf("expected admin a1 recorded, got %v", ids)
	}
	if users.roles["u1"] != auth.RoleUser || len(users.roles) != 2 {
		t.Fatalf("unexpected recorded users %v", users.roles)
	}

	sink := &captureSink{}
	d := notify.NewDispatcher(users, nil, nil, time.Second, sink)
	d.NotifyAdmins("New order", "u1 placed an order", nil)
	d.Wait()
	if len(sink.sent) != 1 || sink.sent[0].UserID != "a1" {
		t.Fatalf("expected one notification for a1, got %+v", sink.sent)
	}
}

func TestRecordFailureDoesNotBlockRequest(t *testing.T) {
	users := &memUsers{fail: errors.New("db down")}
	h := newTestRouterWithUsers(&fakeMode{}, users)
	if rec := do(h, http.MethodGet, "/v1/admin/commission-rules", "admin", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite record failure, got %d", rec.Code)
	}
}

func TestSecurityHeadersAndPreflight(t *testing.T) {
	h := newTestRouter(&fakeMode{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/orders", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("origin not echoed")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("security headers missing")
	}
}

func TestAllowOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://127.0.0.1:5173")
	if !allowOrigin(req, "http://localhost:3000") {
		t.Fatalf("local development origins should match")
	}
	req.Header.Set("Origin", "https://evil.example")
	if allowOrigin(req, "https://app.example") {
		t.Fatalf("foreign origin accepted")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	if !rl.allow("ip") || !rl.allow("ip") {
		t.Fatalf("burst should be allowed")
	}
	if rl.allow("ip") {
		t.Fatalf("expected limit after burst")
	}
	if !rl.allow("other") {
		t.Fatalf("clients must not share a bucket")
	}
	now = now.Add(time.Second)
	if !rl.allow("ip") {
		t.Fatalf("expected a token after refill")
	}
}

func TestNotificationsWSStreamsOwnEvents(t *testing.T) {
	hub := notify.NewHub()
	srv := httptest.NewServer(NewNotificationsWS(hub, tokens, "*", nil))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=user", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { conn.Close() }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		time.Sleep(20 * time.Millisecond)
		hub.Publish("u2", notify.Event{Type: "notification", Data: "not yours"})
		hub.Publish("u1", notify.Event{Type: "notification", Data: "hello"})
		_ = conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		var evt notify.Event
		if err := conn.ReadJSON(&evt); err == nil {
			if evt.Data != "hello" {
				t.Fatalf("received another user's event: %+v", evt)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event received")
		}
		// The subscription may not be registered yet; the read deadline
		// poisons the connection, so redial.
		conn.Close()
		conn, _, err = websocket.DefaultDialer.Dial(url+"?token=user", nil)
		if err != nil {
			t.Fatalf("redial: %v", err)
		}
	}
}
