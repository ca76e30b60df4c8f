//go:build wireinject

package app

import (
	"voltrade/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		provideCandleStore,
		provideRunStore,
		newApp,
	)
	return nil, nil, nil
}
