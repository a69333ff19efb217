package transport_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/fuel-delivery/internal/auth"
	"github.com/vasiliy-maslov/fuel-delivery/internal/transport"
)

type whoami struct{}

func (whoami) RegisterRoutes(router chi.Router) {
	router.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor, _ := auth.FromContext(r.Context())
		_, _ = w.Write([]byte(actor.Role.String()))
	})
}

func TestNewRouter(t *testing.T) {
	authn := auth.NewAuthenticator("router-secret")
	router := transport.NewRouter(authn, nil, whoami{})

	t.Run("health_is_public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "OK", rr.Body.String())
	})

	t.Run("metrics_is_public", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "fuel_orders_created_total")
	})

	t.Run("api_requires_token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("api_with_token", func(t *testing.T) {
		token, err := authn.IssueToken(auth.Vendor(uuid.Must(uuid.NewV4())), time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "vendor", rr.Body.String())
	})
}
