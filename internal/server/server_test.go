package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/galactic-archives/internal/auth"
	"github.com/dukerupert/galactic-archives/internal/billing"
	"github.com/dukerupert/galactic-archives/internal/database"
	"github.com/dukerupert/galactic-archives/internal/model"
	"github.com/dukerupert/galactic-archives/internal/store"
	"github.com/dukerupert/galactic-archives/internal/store/sqlitestore"
	internalws "github.com/dukerupert/galactic-archives/internal/websocket"
)

const webhookSecret = "whsec_server_test"

type testServer struct {
	*httptest.Server
	srv   *Server
	store store.Store
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	st := sqlitestore.New(db, nil)

	tokens, err := auth.NewTokens("server-test-secret", time.Hour)
	require.NoError(t, err)

	if opts.Argon2 == (auth.Argon2Params{}) {
		opts.Argon2 = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}
	}
	if opts.CORSOrigins == nil {
		opts.CORSOrigins = []string{"http://localhost:5173"}
	}
	opts.Version = "test"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(st, tokens, opts, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
		st.Close(context.Background())
	})
	return &testServer{Server: ts, srv: srv, store: st}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	code, body := ts.do(t, "POST", "/api/v1/auth/register", "", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	require.Equal(t, http.StatusCreated, code, string(body))
	code, body = ts.do(t, "POST", "/api/v1/auth/login", "", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	require.Equal(t, http.StatusOK, code, string(body))
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &tok))
	return tok.AccessToken
}

func TestNotesScenario(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, _ := ts.do(t, "POST", "/api/v1/auth/register", "", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = ts.do(t, "POST", "/api/v1/auth/login", "", `{"email":"a@x.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := ts.do(t, "POST", "/api/v1/auth/login", "", `{"email":"a@x.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, code)
	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(body, &tok))
	assert.Equal(t, "bearer", tok.TokenType)
	token := tok.AccessToken

	code, body = ts.do(t, "POST", "/api/v1/notes", token, `{"title":"Log","content":"first"}`)
	require.Equal(t, http.StatusCreated, code, string(body))
	var note model.Note
	require.NoError(t, json.Unmarshal(body, &note))
	require.True(t, model.ValidID(note.ID))

	code, body = ts.do(t, "GET", "/api/v1/notes", token, "")
	require.Equal(t, http.StatusOK, code)
	var notes []model.Note
	require.NoError(t, json.Unmarshal(body, &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, note.ID, notes[0].ID)

	code, _ = ts.do(t, "PUT", "/api/v1/notes/"+note.ID, token, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, "DELETE", "/api/v1/notes/not-an-id", token, "")
	assert.Equal(t, http.StatusBadRequest, code)

	other := ts.login(t, "b@x.com", "secret2")
	code, body = ts.do(t, "POST", "/api/v1/notes", other, `{"title":"Mine","content":"b"}`)
	require.Equal(t, http.StatusCreated, code)
	var foreign model.Note
	require.NoError(t, json.Unmarshal(body, &foreign))

	code, _ = ts.do(t, "DELETE", "/api/v1/notes/"+foreign.ID, token, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, "GET", "/api/v1/notes/"+foreign.ID, other, "")
	assert.Equal(t, http.StatusOK, code, "foreign note survives")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, Options{})

	for _, token := range []string{"", "garbage", "a.b.c"} {
		code, body := ts.do(t, "GET", "/api/v1/notes", token, "")
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.JSONEq(t, `{"error":"Could not validate credentials"}`, string(body))
	}

	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
}

func TestTokenForDeletedUserIsRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	tokens, err := auth.NewTokens("server-test-secret", time.Hour)
	require.NoError(t, err)

	// Well-signed, but no such user.
	token, _, err := tokens.Issue("ghost@x.com")
	require.NoError(t, err)

	code, _ := ts.do(t, "GET", "/api/v1/auth/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMe(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.login(t, "a@x.com", "secret1")

	code, body := ts.do(t, "GET", "/api/v1/auth/me", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(body), "argon2")

	var me map[string]any
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "a@x.com", me["email"])
}

func TestInfoReportsIdentity(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.login(t, "a@x.com", "secret1")

	for _, tt := range []struct {
		token string
		want  bool
	}{
		{"", false},
		{"garbage", false},
		{token, true},
	} {
		code, body := ts.do(t, "GET", "/api/v1", tt.token, "")
		require.Equal(t, http.StatusOK, code)
		var info map[string]any
		require.NoError(t, json.Unmarshal(body, &info))
		assert.Equal(t, tt.want, info["authenticated"])
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, Options{})

	code, body := ts.do(t, "GET", "/healthz", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"healthy","database":"connected","service":"Galactic Archives API","version":"test"}`, string(body))

	ts.do(t, "GET", "/api/v1/notes/"+model.NewID(), "", "")

	code, body = ts.do(t, "GET", "/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	text := string(body)
	assert.Contains(t, text, `archives_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, text, `route="/api/v1/notes/{id}"`)
	assert.Contains(t, text, `archives_auth_failures_total{reason="missing_token"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestRequestIDHeader(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{})

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/api/v1/notes", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestAuthRateLimit(t *testing.T) {
	ts := newTestServer(t, Options{AuthRateLimit: 2})

	for i := 0; i < 2; i++ {
		code, _ := ts.do(t, "POST", "/api/v1/auth/login", "", `{"email":"a@x.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, code)
	}
	code, _ := ts.do(t, "POST", "/api/v1/auth/login", "", `{"email":"a@x.com","password":"nope"}`)
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Other routes are not limited.
	code, _ = ts.do(t, "GET", "/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthRateLimitIgnoresForwardedFor(t *testing.T) {
	ts := newTestServer(t, Options{AuthRateLimit: 3})

	limited := 0
	for i := 0; i < 20; i++ {
		req, err := http.NewRequest("POST", ts.URL+"/api/v1/auth/login", strings.NewReader(`{"email":"a@x.com","password":"nope"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("CF-Connecting-IP", fmt.Sprintf("198.51.100.%d", i))
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 17, limited, "rotating forwarding headers must not reset the per-client budget")
}

func TestAuthRateLimitTrustedProxy(t *testing.T) {
	ts := newTestServer(t, Options{
		AuthRateLimit:  1,
		TrustedProxies: []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("::1/128")},
	})

	login := func(client string) int {
		req, err := http.NewRequest("POST", ts.URL+"/api/v1/auth/login", strings.NewReader(`{"email":"a@x.com","password":"nope"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", client)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("203.0.113.1"))
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.2"), "each forwarded client has its own budget behind a trusted proxy")
}

func TestStoreUnavailable(t *testing.T) {
	tokens, err := auth.NewTokens("server-test-secret", time.Hour)
	require.NoError(t, err)
	srv := New(store.Unavailable{}, tokens, Options{Version: "test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/v1/auth/register", "application/json", strings.NewReader(`{"email":"a@x.com","password":"secret1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	token, _, err := tokens.Issue("a@x.com")
	require.NoError(t, err)
	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/notes", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "disconnected", health["database"])
}

func TestNoteStream(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.login(t, "a@x.com", "secret1")
	other := ts.login(t, "b@x.com", "secret2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/notes/stream?token=" + token
	conn, _, err := ws.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return ts.srv.Hub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Another user's activity is not delivered.
	code, _ := ts.do(t, "POST", "/api/v1/notes", other, `{"title":"Theirs","content":"b"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.do(t, "POST", "/api/v1/notes", token, `{"title":"Log","content":"first"}`)
	require.Equal(t, http.StatusCreated, code)
	var note model.Note
	require.NoError(t, json.Unmarshal(body, &note))

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg internalws.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, internalws.Message{Type: "note_created", Entity: "note", Action: "created", ID: note.ID}, msg)

	code, _ = ts.do(t, "DELETE", "/api/v1/notes/"+note.ID, token, "")
	require.Equal(t, http.StatusOK, code)

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "note_deleted", msg.Type)
}

func TestNoteStreamRequiresToken(t *testing.T) {
	ts := newTestServer(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/notes/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// webhookProvider verifies signatures for real and fails every outbound call.
type webhookProvider struct{}

func (webhookProvider) FindOrCreateCustomer(string, string) (string, error) {
	return "", fmt.Errorf("offline")
}
func (webhookProvider) PriceIDForLookupKey(string) (string, error) { return "", nil }
func (webhookProvider) CreateCheckoutSession(string, string, string) (string, error) {
	return "", fmt.Errorf("offline")
}
func (webhookProvider) CreateBillingPortalSession(string) (string, error) {
	return "", fmt.Errorf("offline")
}
func (webhookProvider) ConstructWebhookEvent(payload []byte, sig string) (stripe.Event, error) {
	return billing.ConstructEvent(payload, sig, webhookSecret)
}
func (webhookProvider) EnsureCatalogEntry(e billing.CatalogEntry) (model.Product, error) {
	return e.Product("price_" + e.LookupKey), nil
}

func TestBillingRoutes(t *testing.T) {
	ts := newTestServer(t, Options{Billing: webhookProvider{}})
	token := ts.login(t, "a@x.com", "secret1")

	code, body := ts.do(t, "POST", "/api/v1/billing/create-portal-session", token, "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.JSONEq(t, `{"error":"Failed to initialize billing account"}`, string(body))

	code, _ = ts.do(t, "POST", "/api/v1/billing/create-checkout-session", "", `{"price_id":"price_1"}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = ts.do(t, "GET", "/api/v1/billing/products", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]\n", string(body))

	payload := `{"id":"evt_1","object":"event","type":"customer.subscription.created","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_9","status":"trialing","items":{"object":"list","data":[{"id":"si_1","object":"subscription_item","price":{"id":"price_pro","object":"price"}}]}}}}`
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	u, err := ts.store.Users().GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NoError(t, ts.store.Users().SetStripeCustomerID(context.Background(), u.ID, "cus_9"))

	post := func(sig string) (int, string) {
		req, _ := http.NewRequest("POST", ts.URL+"/api/v1/billing/webhook", strings.NewReader(payload))
		req.Header.Set("Stripe-Signature", sig)
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	code, _ = post("t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := post(signed.Header)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"success"}`, resp)

	code, body = ts.do(t, "GET", "/api/v1/auth/me", token, "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"trialing","price_id":"price_pro"}`, string(mustField(t, body, "subscription")))
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return m[field]
}

func TestBillingNotConfigured(t *testing.T) {
	ts := newTestServer(t, Options{})
	token := ts.login(t, "a@x.com", "secret1")

	code, body := ts.do(t, "POST", "/api/v1/billing/create-checkout-session", token, `{"lookup_key":"pro_monthly"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"error":"Billing not configured"}`, string(body))
}
