package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/barsync/internal/config"
)

// ApplicationName is reported to the server for every pooled connection.
const ApplicationName = "barsync"

// ConnString renders cfg as a postgres:// URL. Credentials are escaped and
// an empty SSL mode falls back to the config default.
func ConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
