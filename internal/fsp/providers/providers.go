// Package providers builds the adapter registry of every integrated FSP
package providers

import (
	"log/slog"
	"net/http"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/fsp/nedbank"
	"github.com/fsp-disbursement/internal/fsp/safaricom"
)

// NewRegistry creates one adapter per provider sharing a single HTTP client.
// The client timeout bounds every provider call.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*fsp.Registry, error) {
	httpClient := &http.Client{Timeout: cfg.Processor.ProviderTimeout}

	return fsp.NewRegistry(
		nedbank.NewAdapter(cfg.Nedbank, httpClient, logger),
		safaricom.NewAdapter(cfg.Safaricom, httpClient, logger),
	)
}
