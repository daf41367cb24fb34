package config

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wsdtool/wsdtool/internal/cache"
)

// Session carries the settings shared by every engine during one run.
// It is built once at start-up and passed explicitly.
type Session struct {
	// ID is this client's endpoint identity, a urn:uuid
	ID string

	Debug     bool
	CachePath string
	Timeouts  Timeouts
}

// NewSession creates a session with a fresh identity. The cache path
// comes from WSD_CACHE_PATH, then the config file, then the default.
func NewSession(cfg *Config, debug bool) (*Session, error) {
	path := os.Getenv(cache.CachePathEnvVar)
	if path == "" {
		path = cfg.Cache
	}
	if path == "" {
		p, err := cache.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	return &Session{
		ID:        "urn:uuid:" + uuid.NewString(),
		Debug:     debug,
		CachePath: path,
		Timeouts:  cfg.Timeouts,
	}, nil
}

// WithTimeout overrides the request timeout when d is positive
func (s *Session) WithTimeout(d time.Duration) *Session {
	if d > 0 {
		s.Timeouts.Request = d
	}
	return s
}
