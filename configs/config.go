// Package config loads process configuration from the environment.
// Quorum sizes are read once at startup and never renegotiated.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Role           string
	CoordinatorURL string
	APIPort        string
	APIKey         string
	Transport      string

	PrimaryQuorum       int
	SecondaryQuorum     int
	PrimaryPopulation   int
	SecondaryPopulation int

	PrimaryAwayMin    time.Duration
	PrimaryAwayMax    time.Duration
	PrimaryActivity   time.Duration
	SecondaryAwayMin  time.Duration
	SecondaryAwayMax  time.Duration
	SecondaryActivity time.Duration

	RedisHost  string
	RedisPort  string
	RedisInbox string

	EtcdEndpoints     []string
	LeaderElectionTTL int

	LogLevel       string
	LogEncoding    string
	TracingEnabled bool
	OTLPEndpoint   string
	StatsSchedule  string
}

func LoadConfig() *Config {
	return &Config{
		Role:           getEnv("ROLE", "PRIMARY"),
		CoordinatorURL: getEnv("COORDINATOR_URL", "http://localhost:8080"),
		APIPort:        getEnv("API_PORT", "8080"),
		APIKey:         getEnv("API_KEY", ""),
		Transport:      strings.ToLower(getEnv("TRANSPORT", "http")),

		// R_COUNT / P_COUNT are the historical names for the two quorum sizes.
		PrimaryQuorum:       getEnvAsInt("PRIMARY_QUORUM", getEnvAsInt("R_COUNT", 9)),
		SecondaryQuorum:     getEnvAsInt("SECONDARY_QUORUM", getEnvAsInt("P_COUNT", 3)),
		PrimaryPopulation:   getEnvAsInt("PRIMARY_POPULATION", 9),
		SecondaryPopulation: getEnvAsInt("SECONDARY_POPULATION", 10),

		PrimaryAwayMin:    getEnvAsDuration("PRIMARY_AWAY_MIN", 8*time.Second),
		PrimaryAwayMax:    getEnvAsDuration("PRIMARY_AWAY_MAX", 10*time.Second),
		PrimaryActivity:   getEnvAsDuration("PRIMARY_ACTIVITY", 2*time.Second),
		SecondaryAwayMin:  getEnvAsDuration("SECONDARY_AWAY_MIN", 1*time.Second),
		SecondaryAwayMax:  getEnvAsDuration("SECONDARY_AWAY_MAX", 5*time.Second),
		SecondaryActivity: getEnvAsDuration("SECONDARY_ACTIVITY", 0),

		RedisHost:  getEnv("REDIS_HOST", "localhost"),
		RedisPort:  getEnv("REDIS_PORT", "6379"),
		RedisInbox: getEnv("REDIS_INBOX", "quorumgate:inbox"),

		EtcdEndpoints:     getEnvAsList("ETCD_ENDPOINTS"),
		LeaderElectionTTL: getEnvAsInt("LEADER_ELECTION_TTL", 15),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogEncoding:    getEnv("LOG_ENCODING", "console"),
		TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4318"),
		StatsSchedule:  getEnv("STATS_SCHEDULE", "@every 30s"),
	}
}

// Validate rejects settings the coordinator cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.PrimaryQuorum <= 0 {
		errs = append(errs, fmt.Errorf("PRIMARY_QUORUM must be positive, got %d", c.PrimaryQuorum))
	}
	if c.SecondaryQuorum <= 0 {
		errs = append(errs, fmt.Errorf("SECONDARY_QUORUM must be positive, got %d", c.SecondaryQuorum))
	}
	if c.PrimaryPopulation < 0 || c.SecondaryPopulation < 0 {
		errs = append(errs, errors.New("populations must not be negative"))
	}
	if c.PrimaryAwayMin < 0 || c.PrimaryAwayMax < c.PrimaryAwayMin {
		errs = append(errs, fmt.Errorf("invalid primary away range [%s, %s]", c.PrimaryAwayMin, c.PrimaryAwayMax))
	}
	if c.SecondaryAwayMin < 0 || c.SecondaryAwayMax < c.SecondaryAwayMin {
		errs = append(errs, fmt.Errorf("invalid secondary away range [%s, %s]", c.SecondaryAwayMin, c.SecondaryAwayMax))
	}
	if c.Transport != "http" && c.Transport != "redis" {
		errs = append(errs, fmt.Errorf("TRANSPORT must be http or redis, got %q", c.Transport))
	}
	return errors.Join(errs...)
}

// Timings returns the away range and post-release activity for a role name
// (PRIMARY or SECONDARY, case-insensitive).
func (c *Config) Timings(role string) (awayMin, awayMax, activity time.Duration) {
	if strings.EqualFold(role, "PRIMARY") {
		return c.PrimaryAwayMin, c.PrimaryAwayMax, c.PrimaryActivity
	}
	return c.SecondaryAwayMin, c.SecondaryAwayMax, c.SecondaryActivity
}

// RedisAddr returns host:port for the Redis transport.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma-separated value; unset or empty yields nil.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
