package middleware_test

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"kiosk/pkg/platform/middleware/admin"
	"kiosk/pkg/platform/middleware/auth"
	"kiosk/pkg/platform/middleware/metadata"
	"kiosk/pkg/platform/middleware/request"
	"kiosk/pkg/platform/middleware/requesttime"
	"kiosk/pkg/requestcontext"
)

type stubValidator struct {
	claims *auth.JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*auth.JWTClaims, error) { return s.claims, s.err }

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *MiddlewareSuite) serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func (s *MiddlewareSuite) TestRequestID() {
	var seen string
	h := request.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	s.Run("generates id when absent", func() {
		w := s.serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		s.NotEmpty(seen)
		s.Equal(seen, w.Header().Get(request.HeaderRequestID))
	})

	s.Run("propagates inbound id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(request.HeaderRequestID, "abc-123")
		s.serve(h, req)
		s.Equal("abc-123", seen)
	})
}

func (s *MiddlewareSuite) TestRecovery() {
	h := request.Recovery(s.logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := s.serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(http.StatusInternalServerError, w.Code)
	s.Contains(w.Body.String(), "internal_error")
}

func (s *MiddlewareSuite) TestRequestTime() {
	fixed := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	var seen time.Time
	h := requesttime.MiddlewareWithClock(func() time.Time { return fixed })(
		http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = requestcontext.Now(r.Context())
		}))
	s.serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	s.Equal(fixed, seen)
}

func (s *MiddlewareSuite) TestRequireAuth() {
	var operator string
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		operator = requestcontext.Operator(r.Context())
	})

	s.Run("missing header", func() {
		h := auth.RequireAuth(stubValidator{}, s.logger)(next)
		w := s.serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("invalid token", func() {
		h := auth.RequireAuth(stubValidator{err: errors.New("bad")}, s.logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := s.serve(h, req)
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("valid token sets operator", func() {
		h := auth.RequireAuth(stubValidator{claims: &auth.JWTClaims{Operator: "desk-2"}}, s.logger)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := s.serve(h, req)
		s.Equal(http.StatusOK, w.Code)
		s.Equal("desk-2", operator)
	})
}

func (s *MiddlewareSuite) TestRequireAdminToken() {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set(admin.HeaderAdminToken, "secret")
	s.Equal(http.StatusNoContent, s.serve(admin.RequireAdminToken("secret", s.logger)(next), req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set(admin.HeaderAdminToken, "wrong")
	s.Equal(http.StatusUnauthorized, s.serve(admin.RequireAdminToken("secret", s.logger)(next), req).Code)

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	s.Equal(http.StatusUnauthorized, s.serve(admin.RequireAdminToken("", s.logger)(next), req).Code)
}

func TestClientIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", metadata.ClientIPFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5000"
	assert.Equal(t, "::1", metadata.ClientIPFromRequest(req))
}

func TestDeviceLabel(t *testing.T) {
	assert.Equal(t, "kiosk:lobby-3", metadata.DeviceLabel(" lobby-3 ", "anything"))
	assert.Equal(t, "unknown", metadata.DeviceLabel("", ""))

	chrome := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	label := metadata.DeviceLabel("", chrome)
	assert.Contains(t, label, "Chrome")

	var device string
	h := metadata.ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		device = requestcontext.Device(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(metadata.HeaderKioskID, "entrance")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "kiosk:entrance", device)
}
