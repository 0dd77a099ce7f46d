package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "magpie",
	Short: "Sources product images for catalog items that lack one.",
	Long: `magpie walks a product catalog, searches image providers for each
item without a picture, validates captions against the product name,
downloads the first acceptable match, and optionally publishes it to a
WordPress/WooCommerce store.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error")
}

// initConfig wires environment variables and the process logger.
// Credentials come from the environment, with a .env file honored when
// present.
func initConfig() {
	_ = godotenv.Load()

	viper.SetEnvPrefix("magpie")
	viper.AutomaticEnv()

	level := slog.LevelInfo
	switch lvl, _ := rootCmd.PersistentFlags().GetString("loglevel"); lvl {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Events go to stdout, logs stay on stderr
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	))
}
