package main

import (
	"testing"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadedConfig() *config.Manager {
	cfg := &config.Manager{}
	cfg.ApplyDefaults()
	return cfg
}

func ptr[T any](v T) *T {
	return &v
}

func TestApplyOverrides(t *testing.T) {
	assert := assert.New(t)

	cfg := loadedConfig()
	err := ApplyOverrides(cfg, Overrides{
		LogLevel:      ptr("debug"),
		PrettyLogging: ptr(true),
		MetricsAddr:   ptr(":9090"),
		Hosts:         ptr([]string{"h1:27017", "h2:27017"}),
		MaxPoolSize:   ptr(20),
		MinPoolSize:   ptr(4),
	})
	require.NoError(t, err)

	assert.Equal("debug", cfg.LogLevel)
	assert.True(cfg.PrettyLogging)
	assert.Equal(":9090", cfg.MetricsAddr)
	assert.Equal([]string{"h1:27017", "h2:27017"}, cfg.Hosts)
	assert.Equal(20, cfg.MaxPoolSize)
	assert.Equal(4, cfg.MinPoolSize)
}

func TestApplyOverridesKeepsUnsetFields(t *testing.T) {
	cfg := loadedConfig()
	require.NoError(t, ApplyOverrides(cfg, Overrides{}))

	assert.Equal(t, []string{config.DefaultHost}, cfg.Hosts)
	assert.Equal(t, config.DefaultMaxPoolSize, cfg.MaxPoolSize)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
}

func TestApplyOverridesRejectsBadValues(t *testing.T) {
	for _, tt := range []struct {
		name string
		ov   Overrides
	}{
		{name: "unknown log level", ov: Overrides{LogLevel: ptr("verbose")}},
		{name: "min above max", ov: Overrides{MaxPoolSize: ptr(2), MinPoolSize: ptr(3)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ApplyOverrides(loadedConfig(), tt.ov))
		})
	}
}

func TestCollectOverridesOnlyChangedFlags(t *testing.T) {
	assert := assert.New(t)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "")
	cmd.Flags().StringVar(&logFile, "log-file", "", "")
	cmd.Flags().BoolVar(&prettyLogging, "pretty-log", false, "")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "")
	cmd.Flags().StringSliceVar(&hosts, "hosts", nil, "")
	cmd.Flags().IntVar(&maxPoolSize, "max-pool-size", 0, "")
	cmd.Flags().IntVar(&minPoolSize, "min-pool-size", 0, "")

	require.NoError(t, cmd.Flags().Parse([]string{"--log-level", "error", "--hosts", "a,b"}))

	ov := collectOverrides(cmd)
	require.NotNil(t, ov.LogLevel)
	assert.Equal("error", *ov.LogLevel)
	require.NotNil(t, ov.Hosts)
	assert.Equal([]string{"a", "b"}, *ov.Hosts)

	assert.Nil(ov.LogFile)
	assert.Nil(ov.PrettyLogging)
	assert.Nil(ov.MetricsAddr)
	assert.Nil(ov.MaxPoolSize)
	assert.Nil(ov.MinPoolSize)
}
