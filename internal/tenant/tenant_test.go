package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/store"
)

const testRootKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestService(t *testing.T) *Service {
	t.Helper()
	enc, err := crypto.NewEncryptor(testRootKey)
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	return NewService(store.NewMemory(), enc)
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"App.Example.com":      "app.example.com",
		"app.example.com:8443": "app.example.com",
		"app.example.com.":     "app.example.com",
		" localhost:8080 ":     "localhost",
	}
	for in, want := range cases {
		if got := NormalizeHost(in); got != want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateAndResolve(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, "Team.Example.com:443")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Host != "team.example.com" {
		t.Errorf("expected normalized host, got %q", created.Host)
	}

	got, err := s.ByHost(ctx, "team.example.com")
	if err != nil {
		t.Fatalf("by host: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("expected tenant %s, got %s", created.ID, got.ID)
	}

	sealer, err := s.Sealer(got)
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	sealed, err := sealer.Seal("token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if plain, err := sealer.Open(sealed); err != nil || plain != "token" {
		t.Errorf("round trip failed: %q %v", plain, err)
	}

	if _, err := s.ByHost(ctx, "other.example.com"); err != ErrUnknownDomain {
		t.Errorf("expected ErrUnknownDomain, got %v", err)
	}
	if _, err := s.Create(ctx, " :443"); err != ErrInvalidHost {
		t.Errorf("expected ErrInvalidHost, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newTestService(t)
	if _, err := s.Create(context.Background(), "team.example.com"); err != nil {
		t.Fatalf("create: %v", err)
	}

	r := gin.New()
	r.GET("/whoami", s.Middleware(zap.NewNop()), func(c *gin.Context) {
		if SealerFromContext(c) == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, FromContext(c).Host)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://team.example.com/whoami", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "team.example.com" {
		t.Errorf("expected 200 team.example.com, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "http://unknown.example.com/whoami", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "unknown_domain") {
		t.Errorf("expected 404 unknown_domain, got %d %s", w.Code, w.Body.String())
	}
}

func TestAdminMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"disabled", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin", AdminMiddleware(tc.token), func(c *gin.Context) { c.Status(http.StatusOK) })
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}
