package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// PostgresConnectionString returns the keyword/value connection string for
// pgx. The password is included; never log the returned value.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser,
		c.PostgresPassword, c.PostgresDBName, c.PostgresSSLMode)
}

// PostgresURL returns the URL-form connection string used by golang-migrate.
// The password is URL-escaped; never log the returned value.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, url.QueryEscape(c.PostgresPassword),
		c.PostgresHost, c.PostgresPort, c.PostgresDBName, c.PostgresSSLMode)
}

// parseDatabaseURL overrides the postgres_* fields from the DATABASE_URL
// environment variable when present. Platforms like Cloud Run and Heroku
// inject connection details in this form.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported DATABASE_URL scheme %q", u.Scheme)
	}

	if host := u.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		if user := u.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if pass, ok := u.User.Password(); ok {
			c.PostgresPassword = pass
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		c.PostgresDBName = db
	}
	if ssl := u.Query().Get("sslmode"); ssl != "" {
		c.PostgresSSLMode = ssl
	}

	return nil
}
