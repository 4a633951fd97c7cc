package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(config.WithMail("memory", "owner@example.com", ""))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.BrokerType)
	assert.Equal(t, "memory", cfg.StoreType)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 1, cfg.WorkBatchSize)
	assert.Equal(t, 5, cfg.DeadBatchSize)
	assert.Equal(t, "publish", cfg.RejectionMode)
}

func TestLoadRequiresRecipient(t *testing.T) {
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email_recipient")
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name string
		opts []config.Option
	}{
		{"store", []config.Option{config.WithRecordStore("redis", "", "")}},
		{"storage", []config.Option{config.WithObjectStorage("ftp")}},
		{"mailer", []config.Option{config.WithMail("smtp", "o@example.com", "")}},
		{"rejection mode", []config.Option{config.WithRejectionMode("drop")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.opts...)
			assert.Error(t, err)
		})
	}
}

func TestLoadAWSBrokerRequiresAddresses(t *testing.T) {
	_, err := config.Load(
		config.WithMail("memory", "owner@example.com", ""),
		config.WithAWSBroker("", "q", "dlq", "", ""),
	)
	assert.Error(t, err)
}

func TestLoadDynamoRequiresTable(t *testing.T) {
	_, err := config.Load(
		config.WithMail("memory", "owner@example.com", ""),
		config.WithRecordStore("dynamo", "", ""),
	)
	assert.Error(t, err)
}

func TestLoadSESRequiresSender(t *testing.T) {
	_, err := config.Load(config.WithMail("ses", "owner@example.com", ""))
	assert.Error(t, err)
}

func TestWithEnv(t *testing.T) {
	t.Setenv("PP_EMAIL_RECIPIENT", "owner@example.com")
	t.Setenv("PP_REJECTION_MODE", "retry")
	t.Setenv("PP_MAX_ATTEMPTS", "3")

	cfg, err := config.Load(config.WithEnv("PP_"))
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", cfg.EmailRecipient)
	assert.Equal(t, "retry", cfg.RejectionMode)
	assert.Equal(t, 3, cfg.MaxAttempts)
}

func TestWithEnvInvalidInteger(t *testing.T) {
	t.Setenv("PP_EMAIL_RECIPIENT", "owner@example.com")
	t.Setenv("PP_MAX_ATTEMPTS", "lots")

	_, err := config.Load(config.WithEnv("PP_"))
	assert.Error(t, err)
}

func TestBuildPipelineMemory(t *testing.T) {
	cfg, err := config.Load(config.WithMail("memory", "owner@example.com", "noreply@example.com"))
	require.NoError(t, err)

	p, err := cfg.BuildPipeline(nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.NotNil(t, p.Router())
	assert.NotNil(t, p.Validator())

	depths := p.QueueDepths()
	assert.Contains(t, depths, "work")
	assert.Contains(t, depths, "dead-letter")
}
