package audio

import (
	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audio.EncoderFactory(NewOpusEncoder))
	do.ProvideValue(injector, audio.DecoderFactory(NewOpusDecoder))
}
