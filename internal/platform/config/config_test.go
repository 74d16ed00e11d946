package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "person-events", cfg.Kafka.PersonTopic)
	assert.Equal(t, "entry-events", cfg.Kafka.EntryTopic)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
	assert.Equal(t, "entryUUID", cfg.Directory.UniqueIDAttr)
	assert.Equal(t, uint32(500), cfg.Directory.PageSize)
	assert.Equal(t, time.Minute, cfg.Directory.PollInterval)
	assert.Equal(t, []string{"F123LX"}, cfg.Engine.UsernamePatterns)
	assert.Equal(t, "none", cfg.Engine.DiscriminatorMode)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DIRSYNC_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("DIRSYNC_DISCRIMINATOR_VALUES", "value != null && value.size() == 3; true")
	t.Setenv("DIRSYNC_USERNAME_REPLACEMENTS", `{"ø":"oe","å":"aa"}`)
	t.Setenv("DIRSYNC_POLL_INTERVAL", "30s")
	t.Setenv("DIRSYNC_STRIP_VOWELS", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"value != null && value.size() == 3", "true"}, cfg.Engine.DiscriminatorValues)
	assert.Equal(t, map[string]string{"ø": "oe", "å": "aa"}, cfg.Engine.Replacements)
	assert.Equal(t, 30*time.Second, cfg.Directory.PollInterval)
	assert.True(t, cfg.Engine.StripVowels)
}

func TestFromEnvRejectsBadDuration(t *testing.T) {
	t.Setenv("DIRSYNC_POLL_INTERVAL", "soon")

	_, err := FromEnv()
	assert.Error(t, err)
}
