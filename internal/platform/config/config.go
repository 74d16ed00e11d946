// Package config builds the process configuration from environment
// variables so main stays lean. Every knob has a development default; the
// deployment overrides what it needs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	LogLevel      string
	JWTSigningKey string
}

// Postgres locates the registry mirror database.
type Postgres struct {
	URL string
}

// Redis locates the shared cursor store. An empty URL disables Redis and the
// poller falls back to an in-process cursor.
type Redis struct {
	URL string
}

// Kafka captures broker addresses and the topics the engine consumes.
type Kafka struct {
	Brokers     []string
	Group       string
	PersonTopic string
	EntryTopic  string
	// MaxAttempts bounds redelivery of retryable failures per event.
	MaxAttempts int
}

// Directory captures the LDAP connection and search scope.
type Directory struct {
	URL           string
	BindDN        string
	BindPassword  string
	BaseDN        string
	UniqueIDAttr  string
	UsernameAttrs []string
	PageSize      uint32
	PollInterval  time.Duration
	PollHorizon   time.Duration
	// CreateOU is the subtree new entries are created under.
	CreateOU string
	// ObjectClasses are stamped on created entries.
	ObjectClasses []string
}

// Engine captures the correlation policy.
type Engine struct {
	SecondaryKeyAttr    string
	SecondaryKeyPattern string
	DiscriminatorMode   string
	DiscriminatorField  string
	// DiscriminatorValues are separated by ";" in the environment since
	// template expressions may contain commas.
	DiscriminatorValues []string
	UsernamePatterns    []string
	ForbiddenUsernames  []string
	// Replacements is a JSON object, e.g. {"ø":"oe","å":"aa"}.
	Replacements map[string]string
	StripVowels  bool
}

// Config is the full process configuration.
type Config struct {
	Server    Server
	Postgres  Postgres
	Redis     Redis
	Kafka     Kafka
	Directory Directory
	Engine    Engine
}

// FromEnv builds the configuration from DIRSYNC_* environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:          envOr("DIRSYNC_ADDR", ":8080"),
			LogLevel:      envOr("DIRSYNC_LOG_LEVEL", "info"),
			JWTSigningKey: envOr("DIRSYNC_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL: os.Getenv("DIRSYNC_POSTGRES_URL"),
		},
		Redis: Redis{
			URL: os.Getenv("DIRSYNC_REDIS_URL"),
		},
		Kafka: Kafka{
			Brokers:     envList("DIRSYNC_KAFKA_BROKERS", "localhost:9092"),
			Group:       envOr("DIRSYNC_KAFKA_GROUP", "dirsync"),
			PersonTopic: envOr("DIRSYNC_PERSON_TOPIC", "person-events"),
			EntryTopic:  envOr("DIRSYNC_ENTRY_TOPIC", "entry-events"),
		},
		Directory: Directory{
			URL:           envOr("DIRSYNC_LDAP_URL", "ldap://localhost:389"),
			BindDN:        os.Getenv("DIRSYNC_LDAP_BIND_DN"),
			BindPassword:  os.Getenv("DIRSYNC_LDAP_BIND_PASSWORD"),
			BaseDN:        os.Getenv("DIRSYNC_LDAP_BASE_DN"),
			UniqueIDAttr:  envOr("DIRSYNC_LDAP_UNIQUE_ID_ATTR", "entryUUID"),
			UsernameAttrs: envList("DIRSYNC_LDAP_USERNAME_ATTRS", "uid"),
			CreateOU:      os.Getenv("DIRSYNC_LDAP_CREATE_OU"),
			ObjectClasses: envList("DIRSYNC_LDAP_OBJECT_CLASSES", "inetOrgPerson"),
		},
		Engine: Engine{
			SecondaryKeyAttr:    envOr("DIRSYNC_SECONDARY_KEY_ATTR", "employeeNumber"),
			SecondaryKeyPattern: os.Getenv("DIRSYNC_SECONDARY_KEY_PATTERN"),
			DiscriminatorMode:   envOr("DIRSYNC_DISCRIMINATOR_MODE", "none"),
			DiscriminatorField:  os.Getenv("DIRSYNC_DISCRIMINATOR_FIELD"),
			DiscriminatorValues: envSplit(os.Getenv("DIRSYNC_DISCRIMINATOR_VALUES"), ";"),
			UsernamePatterns:    envList("DIRSYNC_USERNAME_PATTERNS", "F123LX"),
			ForbiddenUsernames:  envSplit(os.Getenv("DIRSYNC_FORBIDDEN_USERNAMES"), ","),
			StripVowels:         os.Getenv("DIRSYNC_STRIP_VOWELS") == "true",
		},
	}

	var err error
	if cfg.Kafka.MaxAttempts, err = envInt("DIRSYNC_EVENT_MAX_ATTEMPTS", 5); err != nil {
		return Config{}, err
	}
	pageSize, err := envInt("DIRSYNC_LDAP_PAGE_SIZE", 500)
	if err != nil {
		return Config{}, err
	}
	cfg.Directory.PageSize = uint32(pageSize)
	if cfg.Directory.PollInterval, err = envDuration("DIRSYNC_POLL_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Directory.PollHorizon, err = envDuration("DIRSYNC_POLL_HORIZON", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Engine.Replacements, err = envJSONMap("DIRSYNC_USERNAME_REPLACEMENTS"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key, fallback string) []string {
	return envSplit(envOr(key, fallback), ",")
}

func envSplit(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envJSONMap(key string) (map[string]string, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return out, nil
}
