package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/foxseedlab/koedriver/internal/audio"
	internalconfig "github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/crypto"
)

type envConfig struct {
	Env                  string                    `env:"ENV" envDefault:"production"`
	DatabaseURL          string                    `env:"DATABASE_URL,required"`
	DiscordToken         string                    `env:"DISCORD_TOKEN,required"`
	DiscordGuildID       string                    `env:"DISCORD_GUILD_ID,required"`
	DiscordVCID          string                    `env:"DISCORD_VC_ID,required"`
	DisconnectWebhookURL string                    `env:"DISCONNECT_WEBHOOK_URL"`
	MetricsAddr          string                    `env:"METRICS_ADDR" envDefault:":9090"`
	CryptoMode           crypto.Mode               `env:"VOICE_CRYPTO_MODE" envDefault:"xsalsa20_poly1305_lite"`
	DecodeMode           internalconfig.DecodeMode `env:"VOICE_DECODE_MODE" envDefault:"decrypt"`
	MixMode              audio.MixMode             `env:"VOICE_MIX_MODE" envDefault:"stereo"`
	Bitrate              audio.Bitrate             `env:"VOICE_BITRATE" envDefault:"auto"`
	PreallocatedTracks   int                       `env:"VOICE_PREALLOCATED_TRACKS" envDefault:"1"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}
	return fromEnv(raw)
}

func fromEnv(raw envConfig) (*internalconfig.Config, error) {
	cfg := &internalconfig.Config{
		Env:                  raw.Env,
		DatabaseURL:          raw.DatabaseURL,
		DiscordToken:         raw.DiscordToken,
		DiscordGuildID:       raw.DiscordGuildID,
		DiscordVCID:          raw.DiscordVCID,
		DisconnectWebhookURL: raw.DisconnectWebhookURL,
		MetricsAddr:          raw.MetricsAddr,
		Driver: internalconfig.Driver{
			CryptoMode:         raw.CryptoMode,
			DecodeMode:         raw.DecodeMode,
			MixMode:            raw.MixMode,
			Bitrate:            raw.Bitrate,
			PreallocatedTracks: raw.PreallocatedTracks,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
