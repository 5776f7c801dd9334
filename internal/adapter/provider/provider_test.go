package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/logs"
)

func names(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	var out []string
	for _, i := range FromConfig(cfg, transport.Shared{Logger: logs.Discard()}) {
		out = append(out, i.Name())
	}
	return out
}

func TestFromConfigRegistersUtilitiesOnly(t *testing.T) {
	assert.ElementsMatch(t, []string{"MS Word", "Regex Actions", "My Utilities", "ScreenShots"}, names(t, config.Default()))
}

func TestFromConfigRegistersConfiguredVendors(t *testing.T) {
	cfg := config.Default()
	cfg.Integrations.Screenshot.Disabled = true
	cfg.Integrations.MISP = config.MISPProfile{URL: "https://misp.local", APIToken: "k"}
	cfg.Integrations.Twinwave = config.TwinwaveProfile{APIToken: "k"}
	cfg.Integrations.AzureTable = config.AzureTableProfile{AccountName: "acct", AccessKey: "c2VjcmV0"}
	// incomplete profile
	cfg.Integrations.LogRhythm = config.LogRhythmProfile{URL: "https://lr.local"}

	got := names(t, cfg)
	assert.Contains(t, got, "MISP")
	assert.Contains(t, got, "Twinwave")
	assert.Contains(t, got, "Azure Storage Table")
	assert.NotContains(t, got, "LogRhythm REST")
	assert.NotContains(t, got, "ScreenShots")
}

func TestFromConfigSkipsBrokenProfiles(t *testing.T) {
	cfg := config.Default()
	cfg.Integrations.AzureTable = config.AzureTableProfile{AccountName: "acct", AccessKey: "%%% not base64"}

	assert.NotContains(t, names(t, cfg), "Azure Storage Table")
}

func TestSharedTransportBreaker(t *testing.T) {
	cfg := config.Default()
	shared := SharedTransport(cfg, logs.Discard())
	assert.NotNil(t, shared.Doer)
	assert.Nil(t, shared.Breaker)

	cfg.CircuitBreaker = config.BreakerConfig{MaxFailures: 3, Timeout: "10s"}
	shared = SharedTransport(cfg, logs.Discard())
	require.NotNil(t, shared.Breaker)
	assert.Equal(t, uint32(3), shared.Breaker.MaxFailures)
	assert.Equal(t, 10*time.Second, shared.Breaker.Timeout)
}
