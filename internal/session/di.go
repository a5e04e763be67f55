package session

import (
	"log/slog"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/discord"
	"github.com/foxseedlab/koedriver/internal/driver"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/foxseedlab/koedriver/internal/repository"
	"github.com/foxseedlab/koedriver/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		dc := do.MustInvoke[discord.Client](i)
		wh := do.MustInvoke[webhook.Sender](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		hs := do.MustInvoke[driver.Handshaker](i)
		newEncoder := do.MustInvoke[audio.EncoderFactory](i)
		newDecoder := do.MustInvoke[audio.DecoderFactory](i)
		newDriver := func(guildID string) Driver {
			return driver.New(driver.Config{
				Driver:     cfg.Driver,
				NewEncoder: newEncoder,
				NewDecoder: newDecoder,
				Handshaker: hs,
				Metrics:    m,
				Logger:     slog.Default().With("guild_id", guildID),
			})
		}
		return NewManager(cfg, repo, dc, wh, m, newDriver), nil
	})
}
