// Package audit logs one structured record per CLI invocation: the command,
// the config file in effect, the flags the caller set and the relevant
// environment. Credentials are reduced to "set"/"unset"; connection URLs
// lose their userinfo and query.
package audit

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/54b3r/ragcore-go/internal/config"
)

// redactor turns a raw environment value into something safe to log.
type redactor func(string) string

var (
	plain  redactor = valOrUnset
	secret redactor = presence
	dsn    redactor = func(v string) string {
		if v == "" {
			return "unset"
		}
		return SanitiseURL(v)
	}
)

// auditKeys is the ordered list of env vars recorded for every command.
var auditKeys = []struct {
	key    string
	redact redactor
}{
	{config.EnvBackend, plain},
	{config.EnvDBPath, plain},
	{config.EnvSnapshot, plain},
	{config.EnvCacheEnabled, plain},
	{config.EnvHybridStrategy, plain},
	{config.EnvQdrantHost, plain},
	{config.EnvQdrantPort, plain},
	{config.EnvQdrantAPIKey, secret},
	{config.EnvPostgresDSN, dsn},
	{config.EnvMinIOEndpoint, plain},
	{config.EnvMinIOBucket, plain},
	{config.EnvMinIOAccessKey, secret},
	{config.EnvMinIOSecretKey, secret},
	{config.EnvEmbeddingProvider, plain},
	{config.EnvEmbeddingModel, plain},
	{config.EnvEmbeddingEndpoint, dsn},
	{config.EnvEmbeddingAPIKey, secret},
	{config.EnvServerHost, plain},
	{config.EnvServerPort, plain},
	{config.EnvAPIKey, secret},
	{config.EnvLogLevel, plain},
	{config.EnvLogFormat, plain},
}

// LogCommandStart records the start of command. flags lists the names of
// flags the caller set explicitly; their values are not logged.
func LogCommandStart(log *slog.Logger, command, configPath string, flags ...string) {
	env := make([]any, 0, len(auditKeys))
	for _, e := range auditKeys {
		env = append(env, slog.String(e.key, e.redact(os.Getenv(e.key))))
	}

	flags = append([]string(nil), flags...)
	sort.Strings(flags)

	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start",
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.Any("flags", flags),
		slog.Group("env", env...),
	)
}

// SanitiseKey returns the loggable form of value for the env var key.
// Unknown keys are treated as secrets.
func SanitiseKey(key, value string) string {
	for _, e := range auditKeys {
		if e.key == key {
			return e.redact(value)
		}
	}
	return presence(value)
}

// SanitiseURL strips userinfo and query from a connection URL. Values that
// are not URLs, such as key=value DSNs, are reduced to "set".
func SanitiseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return presence(raw)
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path with the home directory
// abbreviated, or "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home+string(os.PathSeparator)) {
		return "~" + p[len(home):]
	}
	return p
}
