package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-board/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Realtime collaborative boards over WebSockets",
	Long: `Serves boards: rooms with a chat log, sticky-note tasks and a live
presence list, each coordinated by a single actor and persisted to Redis,
Postgres, SQLite or DynamoDB.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "❌ %v\n", err)
	}
	return err
}

func SetVersionInfo(v, c, d string) {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./board.{toml,yaml,json} if present)")
}

func loadConfig() (config.Config, error) {
	return config.Load(viper.New(), cfgFile)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
