package conn

import (
	"fmt"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
)

// NewDialer picks the dialer for cfg.Backend.
func NewDialer(cfg *config.Manager) (Dialer, error) {
	switch cfg.Backend {
	case config.BackendMongoDB, "":
		return &MongoDialer{
			Credentials:            cfg.Credentials,
			ServerSelectionTimeout: cfg.ServerSelectionTimeout(),
		}, nil
	case config.BackendPostgreSQL:
		return &PostgresDialer{
			Credentials:    cfg.Credentials,
			ConnectTimeout: cfg.ServerSelectionTimeout(),
			TraceLevel:     tenantlog.TraceLogLevel(cfg.LogLevel),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
