package config

import (
	"net/url"

	"github.com/mitchellh/mapstructure"
)

const redactedValue = "***"

// Redacted returns a copy with credentials masked, suitable for printing.
func (c Config) Redacted() Config {
	out := c
	if out.Billing.AdminKey != "" {
		out.Billing.AdminKey = redactedValue
	}
	out.Database.URL = redactURL(out.Database.URL)
	out.Redis.URL = redactURL(out.Redis.URL)
	out.Pricing.Models = append([]PriceEntry(nil), c.Pricing.Models...)
	out.Agents.List = append([]AgentEntry(nil), c.Agents.List...)
	return out
}

// Settings flattens the config into nested maps keyed by config file names.
func (c Config) Settings() (map[string]any, error) {
	out := make(map[string]any)
	if err := mapstructure.Decode(c, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
