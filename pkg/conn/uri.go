package conn

import (
	"fmt"
	"net/url"

	"github.com/intellex-clms/tenantdb/pkg/config"
)

// BuildMongoURI builds the connection string for database on host.
func BuildMongoURI(host, database string, creds config.Credentials) string {
	userinfo := ""
	if creds.User != "" {
		userinfo = url.UserPassword(creds.User, creds.Password).String() + "@"
	}

	uri := fmt.Sprintf("mongodb://%s%s/%s", userinfo, host, database)
	if creds.AuthSource != "" {
		uri += "?authSource=" + url.QueryEscape(creds.AuthSource)
	}
	return uri
}

// BuildPostgresURI builds a PostgreSQL connection string for database on host.
func BuildPostgresURI(host, database string, creds config.Credentials) string {
	// URL-encode password to handle special characters
	escapedPassword := url.QueryEscape(creds.Password)

	sslMode := creds.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultSSLMode
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=%s",
		creds.User,
		escapedPassword,
		host,
		database,
		sslMode,
	)
}
