package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds runtime configuration for the reservation daemon.
type Config struct {
	ServicePort      int    `env:"PRS_SERVICE_PORT,default=30000"`
	StartPort        int    `env:"PRS_START_PORT,default=40000"`
	EndPort          int    `env:"PRS_END_PORT,default=40099"`
	KeepAliveSeconds int    `env:"PRS_KEEPALIVE_TIMEOUT,default=300"`
	ListenHost       string `env:"PRS_LISTEN_HOST"`

	Admin  AdminConfig
	Events EventsConfig
}

type AdminConfig struct {
	Enabled        bool     `env:"PRS_ADMIN_ENABLED,default=true"`
	Addr           string   `env:"PRS_ADMIN_ADDR,default=:8080"`
	AllowedOrigins []string `env:"PRS_ADMIN_CORS_ORIGINS,default=*"`
	RateLimit      int      `env:"PRS_ADMIN_RATE_LIMIT,default=100"`
}

type EventsConfig struct {
	NATSURL       string `env:"PRS_NATS_URL"`
	SubjectPrefix string `env:"PRS_NATS_SUBJECT_PREFIX,default=prs.leases"`
	Stream        string `env:"PRS_NATS_STREAM,default=PRS_LEASES"`
	DBDSN         string `env:"PRS_DB_DSN"`
	Buffer        int    `env:"PRS_EVENT_BUFFER,default=256"`
}

// KeepAliveTimeout is the lease lifetime without renewal.
func (c Config) KeepAliveTimeout() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// ListenAddr is the UDP address the receive loop binds to.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.ServicePort))
}
