package parser

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"DealScanner/internal/config"
	"DealScanner/internal/domain"
	"DealScanner/internal/scanner"
)

// KindHTML is the config kind served by SelectorScanner.
const KindHTML = "html"

// RegisterSources builds an adapter for each configured source and registers
// it with its descriptor. Unknown kinds are reported and skipped.
func RegisterSources(reg *scanner.Registry, sources []config.SourceConfig, client *http.Client, log *slog.Logger) error {
	if reg == nil {
		return fmt.Errorf("scanner registry is not configured")
	}

	var errs []string
	for _, src := range sources {
		if src.Name == "" {
			errs = append(errs, "source without name")
			continue
		}

		var adapter scanner.Scanner
		switch strings.ToLower(src.Kind) {
		case KindHTML, "":
			adapter = NewSelectorScanner(SelectorOptions{
				Name:      src.Name,
				Store:     src.Store,
				ListURL:   src.ListURL,
				Pages:     src.Pages,
				PageParam: src.PageParam,
				Selectors: Selectors(src.Selectors),
				Client:    client,
			})
		default:
			errs = append(errs, fmt.Sprintf("source %s: unknown kind %q", src.Name, src.Kind))
			continue
		}

		descriptor := Descriptor(src)
		reg.Register(descriptor, adapter)
		if log != nil {
			log.Debug("source registered", "source", src.Name, "domain", descriptor.Domain, "priority", descriptor.Priority, "enabled", descriptor.Enabled)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("register sources: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Descriptor maps a source config onto its registry descriptor.
func Descriptor(src config.SourceConfig) domain.SourceDescriptor {
	return domain.SourceDescriptor{
		Name:      src.Name,
		Domain:    hostOf(src.ListURL),
		Enabled:   src.IsEnabled(),
		Priority:  src.Priority,
		RateLimit: src.RateLimit,
		Retry: domain.RetryPolicy{
			MaxAttempts: src.Retry.MaxAttempts,
			BaseDelay:   src.Retry.BaseDelay,
		},
		RequiredCredentials: src.RequiredCredentials,
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
