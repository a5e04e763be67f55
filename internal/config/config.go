package config

import "fmt"

type Config struct {
	Env                  string
	DatabaseURL          string
	DiscordToken         string
	DiscordGuildID       string
	DiscordVCID          string
	DisconnectWebhookURL string
	MetricsAddr          string
	Driver               Driver
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if err := c.Driver.Validate(); err != nil {
		return fmt.Errorf("driver config is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DISCORD_VC_ID", value: c.DiscordVCID},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
