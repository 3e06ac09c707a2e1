package slots

import "go.uber.org/fx"

func Module() fx.Option {
	return fx.Module("slots",
		fx.Provide(
			func() *Table { return NewTable() },
		),
	)
}
