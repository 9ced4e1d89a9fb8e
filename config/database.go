package config

import "strings"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"storefront"`
	Password string `env:"PASSWORD" envDefault:"storefront"`
	Name     string `env:"NAME"     envDefault:"storefront"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
	MaxOpenConns         int  `env:"MAX_OPEN_CONNS"          envDefault:"25"`
}

// RedisConfig contains Redis configuration. URI may be a host:port pair or a
// redis:// URL.
type RedisConfig struct {
	URI          string   `env:"URI"           envDefault:"localhost:6379"`
	Password     string   `env:"PASSWORD"      envDefault:""`
	DB           int      `env:"DB"            envDefault:"0"`
	ClusterNodes []string `env:"CLUSTER_NODES" envDefault:""`
	UseCluster   bool     `env:"USE_CLUSTER"   envDefault:"false"`
}

// Sanitize trims addresses and drops empty cluster entries.
func (r *RedisConfig) Sanitize() {
	r.URI = strings.TrimSpace(r.URI)
	nodes := r.ClusterNodes[:0]
	for _, n := range r.ClusterNodes {
		if n = strings.TrimSpace(n); n != "" {
			nodes = append(nodes, n)
		}
	}
	r.ClusterNodes = nodes
	if r.DB < 0 {
		r.DB = 0
	}
}
