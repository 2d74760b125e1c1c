package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type appConfig struct {
	// Storage
	StorageConnectionString string `envconfig:"STORAGE_CONNECTION_STRING" required:"true"`
	EventsTable             string `envconfig:"EVENTS_TABLE" default:"events"`
	UsersTable              string `envconfig:"USERS_TABLE" default:"users"`
	RegistrationsTable      string `envconfig:"REGISTRATIONS_TABLE" default:"registrations"`
	RepairQueue             string `envconfig:"REGISTRATION_REPAIR_QUEUE" default:"registration-repair"`
	// Cache
	RedisConnectionString string        `envconfig:"REDIS_CONNECTION_STRING" required:"true"`
	CacheTTL              time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	// Repair loop
	RepairPollInterval time.Duration `envconfig:"REPAIR_POLL_INTERVAL" default:"5s"`
	// Auth
	AuthDomain   string `envconfig:"AUTH_DOMAIN"`
	AuthAudience string `envconfig:"AUTH_AUDIENCE"`
	// Server
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	Debug      bool   `envconfig:"DEBUG" default:"false"`
}

func loadConfig() (appConfig, error) {
	var c appConfig
	err := envconfig.Process("", &c)
	return c, err
}
