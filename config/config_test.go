package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", " 42 ")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_MS", "5000")
	t.Setenv("TEST_DURATION", "2m")
	t.Setenv("TEST_BAD_DURATION", "soon")
	t.Setenv("TEST_LIST", "http://a.test, ,http://b.test")

	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TEST_BAD_INT", 1))
	assert.Equal(t, 7, getEnvAsInt("TEST_UNSET_INT", 7))

	assert.True(t, getEnvAsBool("TEST_BOOL", false))
	assert.True(t, getEnvAsBool("TEST_UNSET_BOOL", true))

	assert.Equal(t, 5*time.Second, getEnvAsDuration("TEST_MS", time.Second))
	assert.Equal(t, 2*time.Minute, getEnvAsDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_BAD_DURATION", time.Second))

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, getEnvAsList("TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvAsList("TEST_UNSET_LIST", []string{"x"}))
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=x", maskPassword("host=db password=secret dbname=x"))
	assert.Equal(t, "host=db password=*****", maskPassword("host=db password=secret"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EMAIL_SPACING", "250ms")
	t.Setenv("SEQUENCE_ORDER", "edges")
	t.Setenv("STRICT_LABELS", "true")
	t.Setenv("ENVIRONMENT", "development")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "9090", AppConfig.ServerPort)
	assert.Equal(t, 250*time.Millisecond, AppConfig.Engine.EmailSpacing)
	assert.Equal(t, "edges", AppConfig.Engine.SequenceOrder)
	assert.True(t, AppConfig.Engine.StrictLabels)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "development",
			DBPassword:  "secret",
			Engine:      EngineConfig{EmailSpacing: 5 * time.Second, SequenceOrder: "list"},
			Worker:      WorkerConfig{Enabled: true},
		}
	}

	require.NoError(t, validateConfig(valid()))

	cases := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"missing db password", func(c *Config) { c.DBPassword = "" }, "DB_PASSWORD"},
		{"unknown order", func(c *Config) { c.Engine.SequenceOrder = "random" }, "SEQUENCE_ORDER"},
		{"zero spacing", func(c *Config) { c.Engine.EmailSpacing = 0 }, "EMAIL_SPACING"},
		{"production without smtp user", func(c *Config) { c.Environment = "production" }, "SMTP_USERNAME"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}
