package tenantmw

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/intellex-clms/tenantdb/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverFunc func(ctx context.Context, tenantID string) (pool.TenantDatabase, error)

func (f resolverFunc) SwitchToTenantDatabase(ctx context.Context, tenantID string) (pool.TenantDatabase, error) {
	return f(ctx, tenantID)
}

func okResolver(calls *[]string) Resolver {
	return resolverFunc(func(ctx context.Context, tenantID string) (pool.TenantDatabase, error) {
		*calls = append(*calls, tenantID)
		return pool.TenantDatabase{DatabaseName: pool.PoolKey(tenantID), Host: "h1"}, nil
	})
}

func serve(t *testing.T, h http.Handler, req *http.Request) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		return rec.Code, rec.Body.String()
	}

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, body.Error
}

var echoTenant = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	tenant, ok := FromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(tenant.ID + "/" + tenant.Database.DatabaseName))
})

func TestMiddlewareResolvesTenant(t *testing.T) {
	var calls []string
	h := Middleware(okResolver(&calls))(echoTenant)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(DefaultTenantHeader, "acme")

	code, body := serve(t, h, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "acme/tenant_acme", body)
	assert.Equal(t, []string{"acme"}, calls)
}

func TestMiddlewareErrors(t *testing.T) {
	for _, tt := range []struct {
		name     string
		tenant   string
		resolver Resolver
		lookup   Lookup
		code     int
		msg      string
	}{
		{
			name:   "missing tenant",
			tenant: "",
			code:   http.StatusBadRequest,
			msg:    "Tenant ID not provided",
		},
		{
			name:   "resolution failure",
			tenant: "acme",
			resolver: resolverFunc(func(ctx context.Context, tenantID string) (pool.TenantDatabase, error) {
				return pool.TenantDatabase{}, errors.New("unable to connect to database for tenant acme")
			}),
			code: http.StatusInternalServerError,
			msg:  "Error connecting to tenant database",
		},
		{
			name:   "unknown tenant",
			tenant: "ghost",
			lookup: func(ctx context.Context, tenantID string) (bool, error) {
				return false, nil
			},
			code: http.StatusNotFound,
			msg:  "Tenant not found",
		},
		{
			name:   "lookup failure",
			tenant: "acme",
			lookup: func(ctx context.Context, tenantID string) (bool, error) {
				return false, errors.New("registry unavailable")
			},
			code: http.StatusInternalServerError,
			msg:  "Error connecting to tenant database",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			resolver := tt.resolver
			if resolver == nil {
				resolver = okResolver(&calls)
			}

			var opts []Option
			if tt.lookup != nil {
				opts = append(opts, WithLookup(tt.lookup))
			}
			h := Middleware(resolver, opts...)(echoTenant)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tenant != "" {
				req.Header.Set(DefaultTenantHeader, tt.tenant)
			}

			code, msg := serve(t, h, req)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.msg, msg)
			assert.Empty(t, calls)
		})
	}
}

func TestMiddlewareCustomExtractor(t *testing.T) {
	var calls []string
	h := Middleware(okResolver(&calls), WithExtractor(func(r *http.Request) string {
		return r.URL.Query().Get("company")
	}))(echoTenant)

	req := httptest.NewRequest(http.MethodGet, "/?company=globex", nil)
	req.Header.Set(DefaultTenantHeader, "acme")

	code, body := serve(t, h, req)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "globex/tenant_globex", body)
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
