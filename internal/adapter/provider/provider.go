// Package provider assembles the integrations enabled by a configuration.
package provider

import (
	"log/slog"

	"github.com/hive-corporation/soarbridge/internal/adapter/provider/azuretable"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/logrhythm"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/markdown"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/misp"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/msword"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/regex"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/screenshot"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/securonix"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/sentinelone"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/trendmicro"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/twinwave"
	"github.com/hive-corporation/soarbridge/internal/adapter/provider/virustotal"
	"github.com/hive-corporation/soarbridge/internal/adapter/transport"
	"github.com/hive-corporation/soarbridge/internal/config"
	"github.com/hive-corporation/soarbridge/internal/core/ports"
)

// SharedTransport builds the HTTP client, logger and breaker every vendor
// client of the process shares.
func SharedTransport(cfg *config.Config, logger *slog.Logger) transport.Shared {
	shared := transport.Shared{
		Doer:   transport.NewHTTPClient(cfg.VerifySSL, cfg.GetHTTPTimeout()),
		Logger: logger,
	}
	if cb := cfg.CircuitBreaker; cb.MaxFailures > 0 {
		shared.Breaker = &transport.BreakerConfig{
			MaxFailures: cb.MaxFailures,
			Timeout:     cb.GetTimeout(),
		}
	}
	return shared
}

type vendor struct {
	key        string
	configured bool
	build      func() (ports.Integration, error)
}

// FromConfig builds the integrations of cfg. Vendor integrations are only
// registered when their connection profile is complete; the local utilities
// always are.
func FromConfig(cfg *config.Config, shared transport.Shared) []ports.Integration {
	logger := shared.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Integrations

	integrations := []ports.Integration{
		msword.New(cfg.FilesDir, cfg.TemplatesDir),
		regex.New(),
		markdown.New(),
	}
	if p.Screenshot.Disabled {
		logger.Info("⚠️  screenshot integration disabled")
	} else {
		integrations = append(integrations, screenshot.New(p.Screenshot, cfg.FilesDir))
	}

	vendors := []vendor{
		{"azure_table", p.AzureTable.Configured(), func() (ports.Integration, error) {
			return azuretable.New(p.AzureTable, shared.Doer)
		}},
		{"logrhythm", p.LogRhythm.Configured(), func() (ports.Integration, error) {
			return logrhythm.New(p.LogRhythm, shared), nil
		}},
		{"securonix", p.Securonix.Configured(), func() (ports.Integration, error) {
			return securonix.New(p.Securonix, shared), nil
		}},
		{"sentinelone", p.SentinelOne.Configured(), func() (ports.Integration, error) {
			return sentinelone.New(p.SentinelOne, shared), nil
		}},
		{"trendmicro", p.TrendMicro.Configured(), func() (ports.Integration, error) {
			return trendmicro.New(p.TrendMicro, shared), nil
		}},
		{"misp", p.MISP.Configured(), func() (ports.Integration, error) {
			return misp.New(p.MISP, shared), nil
		}},
		{"twinwave", p.Twinwave.Configured(), func() (ports.Integration, error) {
			return twinwave.New(p.Twinwave, cfg.FilesDir, shared), nil
		}},
		{"virustotal", p.VirusTotal.Configured(), func() (ports.Integration, error) {
			return virustotal.New(p.VirusTotal, shared), nil
		}},
	}

	for _, v := range vendors {
		if !v.configured {
			logger.Debug("integration not configured", "profile", v.key)
			continue
		}
		integration, err := v.build()
		if err != nil {
			logger.Warn("❌ failed to set up integration", "profile", v.key, "error", err)
			continue
		}
		logger.Info("✅ integration enabled", "integration", integration.Name())
		integrations = append(integrations, integration)
	}

	return integrations
}
