package voicegw

import (
	"log/slog"

	"github.com/foxseedlab/koedriver/internal/driver"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (driver.Handshaker, error) {
		return New(slog.Default()), nil
	})
}
