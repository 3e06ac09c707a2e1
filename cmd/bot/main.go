package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"margin_bot/internal/api"
	"margin_bot/internal/balance"
	"margin_bot/internal/exchange"
	"margin_bot/internal/market"
	"margin_bot/internal/modules/bootstrap"
	"margin_bot/internal/modules/config"
	"margin_bot/internal/modules/health"
	telegram "margin_bot/internal/modules/telegram_bot"
	"margin_bot/internal/modules/tracing"
	"margin_bot/internal/notify"
	"margin_bot/internal/predict"
	"margin_bot/internal/replacement"
	"margin_bot/internal/runner"
	"margin_bot/internal/settings"
	"margin_bot/internal/slots"
	"margin_bot/internal/store"
	"margin_bot/internal/strategy"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "margin_bot",
		Short:         "Спот-бот с фиксированными слотами и агрессивной заменой слабых позиций",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Запустить бота",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot()
			},
		},
		&cobra.Command{
			Use:   "balance",
			Short: "Показать балансы аккаунта",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printBalances(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "settings",
			Short: "Показать торговые настройки из файла",
			RunE: func(cmd *cobra.Command, args []string) error {
				return printSettings()
			},
		},
	)
	return root
}

func newApp() *fx.App {
	return fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		tracing.Module(),
		health.Module(),
		exchange.Module(),
		settings.Module(),
		notify.Module(),
		store.Module(),
		predict.Module(),
		strategy.Module(),
		slots.Module(),
		replacement.Module(),
		balance.Module(),
		market.Module(),
		runner.Module(),
		bootstrap.Module(),
		api.Module(),
		telegram.Module(),
	)
}

func runBot() error {
	app := newApp()
	if err := app.Err(); err != nil {
		return err
	}
	// Run блокируется до SIGINT/SIGTERM и сам вызывает Stop
	app.Run()
	return nil
}

func printBalances(ctx context.Context) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	ex, err := exchange.New(exchange.NewConfig(cfg))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	bals, err := ex.Balances(ctx)
	if err != nil {
		return err
	}
	assets := make([]string, 0, len(bals))
	for a := range bals {
		assets = append(assets, a)
	}
	sort.Strings(assets)
	for _, a := range assets {
		fmt.Printf("%-8s %.8f\n", a, bals[a])
	}
	return nil
}

func printSettings() error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	st, err := settings.NewStore(cfg.Trading.SettingsFile)
	if err != nil {
		return err
	}
	b, err := sonic.ConfigStd.MarshalIndent(st.Current(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
