package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingRequired is wrapped by Validate when webhook_url or company_id is absent.
var ErrMissingRequired = errors.New("missing required option")

// Validate checks the config for:
//   - Required options (webhook_url, company_id)
//   - An absolute http(s) endpoint
//   - Non-negative tunables
func Validate(cfg *TrackerConfig) error {
	if cfg == nil {
		return fmt.Errorf("config: %w: nil config", ErrMissingRequired)
	}
	var errs []string
	missing := false

	if strings.TrimSpace(cfg.WebhookURL) == "" {
		errs = append(errs, "webhook_url is required")
		missing = true
	} else if u, err := url.Parse(cfg.WebhookURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("webhook_url %q must be an absolute http(s) URL", cfg.WebhookURL))
	}
	if strings.TrimSpace(cfg.CompanyID) == "" {
		errs = append(errs, "company_id is required")
		missing = true
	}

	if cfg.MaxFieldValueLength < 0 {
		errs = append(errs, fmt.Sprintf("max_field_value_length must be >= 0, got %d", cfg.MaxFieldValueLength))
	}
	if cfg.Delivery.SendWorkers < 0 {
		errs = append(errs, fmt.Sprintf("delivery.send_workers must be >= 0, got %d", cfg.Delivery.SendWorkers))
	}
	if cfg.Delivery.QueueDepth < 0 {
		errs = append(errs, fmt.Sprintf("delivery.queue_depth must be >= 0, got %d", cfg.Delivery.QueueDepth))
	}
	if cfg.Delivery.SendTimeoutMs < 0 {
		errs = append(errs, fmt.Sprintf("delivery.send_timeout_ms must be >= 0, got %d", cfg.Delivery.SendTimeoutMs))
	}
	for i, p := range cfg.SensitiveNamePatterns {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Sprintf("sensitive_name_patterns[%d]: pattern must not be blank", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	msg := fmt.Sprintf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	if missing {
		return fmt.Errorf("%w: %s", ErrMissingRequired, msg)
	}
	return errors.New(msg)
}
