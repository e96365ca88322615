package tenantmw

import (
	"context"
	"net/http"

	"github.com/intellex-clms/tenantdb/pkg/pool"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	jsoniter "github.com/json-iterator/go"
)

const DefaultTenantHeader = "X-Tenant-ID"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Resolver maps a tenant to its database. *pool.Manager implements it.
type Resolver interface {
	SwitchToTenantDatabase(ctx context.Context, tenantID string) (pool.TenantDatabase, error)
}

// Extractor reads the tenant id of a request. An empty result means the
// request carries no tenant.
type Extractor func(r *http.Request) string

// Lookup reports whether a tenant is known.
type Lookup func(ctx context.Context, tenantID string) (bool, error)

type options struct {
	extract Extractor
	lookup  Lookup
}

type Option func(*options)

// WithExtractor replaces the default header extractor.
func WithExtractor(e Extractor) Option {
	return func(o *options) {
		o.extract = e
	}
}

// WithLookup rejects unknown tenants with 404 before resolving them.
func WithLookup(l Lookup) Option {
	return func(o *options) {
		o.lookup = l
	}
}

func HeaderExtractor(header string) Extractor {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

type ctxKey struct{}

type Tenant struct {
	ID       string
	Database pool.TenantDatabase
}

// FromContext returns the tenant resolved for the request.
func FromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(ctxKey{}).(Tenant)
	return t, ok
}

func NewContext(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: msg}); err != nil {
		tenantlog.Zero.Error().Err(err).Msg("failed to write error response")
	}
}

// Middleware resolves the request's tenant database before calling next.
func Middleware(resolver Resolver, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		extract: HeaderExtractor(DefaultTenantHeader),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := o.extract(r)
			if tenantID == "" {
				writeError(w, http.StatusBadRequest, "Tenant ID not provided")
				return
			}

			ctx := r.Context()

			if o.lookup != nil {
				known, err := o.lookup(ctx, tenantID)
				if err != nil {
					tenantlog.Zero.Error().Err(err).Str("tenant", tenantID).Msg("tenant lookup failed")
					writeError(w, http.StatusInternalServerError, "Error connecting to tenant database")
					return
				}
				if !known {
					writeError(w, http.StatusNotFound, "Tenant not found")
					return
				}
			}

			db, err := resolver.SwitchToTenantDatabase(ctx, tenantID)
			if err != nil {
				tenantlog.Zero.Error().
					Err(err).
					Str("tenant", tenantID).
					Msg("error switching database for tenant")
				writeError(w, http.StatusInternalServerError, "Error connecting to tenant database")
				return
			}

			tenantlog.Zero.Debug().
				Str("tenant", tenantID).
				Str("db", db.DatabaseName).
				Msg("switched to tenant database")

			next.ServeHTTP(w, r.WithContext(NewContext(ctx, Tenant{ID: tenantID, Database: db})))
		})
	}
}
