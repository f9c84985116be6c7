package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/account"
	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/session"
	"github.com/thidima/fedlink/internal/signin"
	"github.com/thidima/fedlink/internal/store"
	"github.com/thidima/fedlink/internal/tenant"
)

type echoProvider struct{}

func (echoProvider) Name() string { return "google" }
func (echoProvider) Tag() string  { return "g" }
func (echoProvider) AuthURL(state, redirectURI string) string {
	return "https://idp.test/auth?" + url.Values{"state": {state}, "redirect_uri": {redirectURI}}.Encode()
}
func (echoProvider) Exchange(_ context.Context, cb oauth.Callback) (*oauth.Profile, error) {
	return &oauth.Profile{Provider: "google", ProviderUserID: cb.Code, Email: cb.Code + "@x.com", FirstName: "Pat"}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	mem := store.NewMemory()
	enc, err := crypto.NewEncryptor("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	logger := zap.NewNop()
	tenantSvc := tenant.NewService(mem, enc)
	svc := signin.NewService(
		oauth.NewRegistry(echoProvider{}),
		oauth.NewStateStore(mem, 0, nil),
		account.NewResolver(mem, logger),
		account.NewLinker(mem, logger),
		session.NewIssuer(mem, time.Hour, nil),
		logger,
	)
	r := gin.New()
	RegisterRoutes(r, NewHandler(svc, tenantSvc, "", logger), tenantSvc, "admin-token", logger)
	return r, "admin-token"
}

func serve(r *gin.Engine, method, target string, body []byte, header http.Header) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes_SignInFlow(t *testing.T) {
	r, admin := newTestServer(t)

	w := serve(r, "POST", "http://admin.local/tenants", []byte(`{"host":"team.example.com"}`), http.Header{
		"Authorization": {"Bearer " + admin},
		"Content-Type":  {"application/json"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create tenant: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, "GET", "http://team.example.com/auth/google/start", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}
	var prompt struct {
		State   string `json:"state"`
		AuthURL string `json:"authUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &prompt); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}

	w = serve(r, "GET", "http://team.example.com/auth/google/callback?code=pat&state="+prompt.State, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("callback: %d %s", w.Code, w.Body.String())
	}
	var signedIn map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &signedIn)
	if signedIn["username"] != "pat" || signedIn["created"] != true {
		t.Errorf("unexpected session payload: %v", signedIn)
	}

	w = serve(r, "GET", "http://team.example.com/auth/google/callback?code=pat&state="+prompt.State, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("replayed state: expected 400, got %d", w.Code)
	}
}

func TestRoutes_UnknownDomain(t *testing.T) {
	r, _ := newTestServer(t)
	w := serve(r, "GET", "http://nobody.example.com/auth/google/start", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRoutes_TenantsRequireAdmin(t *testing.T) {
	r, _ := newTestServer(t)
	w := serve(r, "POST", "http://admin.local/tenants", []byte(`{"host":"x.example.com"}`), http.Header{
		"Content-Type": {"application/json"},
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRoutes_StateDoesNotCrossTenants(t *testing.T) {
	r, admin := newTestServer(t)
	for _, host := range []string{"a.example.com", "b.example.com"} {
		w := serve(r, "POST", "http://admin.local/tenants", []byte(`{"host":"`+host+`"}`), http.Header{
			"Authorization": {"Bearer " + admin},
			"Content-Type":  {"application/json"},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create tenant %s: %d %s", host, w.Code, w.Body.String())
		}
	}

	w := serve(r, "GET", "http://a.example.com/auth/google/start", nil, nil)
	var prompt struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &prompt); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}

	w = serve(r, "GET", "http://b.example.com/auth/google/callback?code=pat&state="+prompt.State, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("state from another tenant: expected 400, got %d %s", w.Code, w.Body.String())
	}

	w = serve(r, "GET", "http://a.example.com/auth/google/callback?code=pat&state="+prompt.State, nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("state on its own tenant: expected 200, got %d %s", w.Code, w.Body.String())
	}
}
