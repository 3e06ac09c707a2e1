package replacement

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("replacement",
		fx.Provide(
			NewLedger,
			NewEngine,
		),
	)
}
