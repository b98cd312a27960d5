// Command intervox runs the Intervox mock-interview server.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/intervox/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "intervox",
	Short: "AI mock-interview server",
	Long: `Intervox runs spoken and typed mock interviews driven by a chain of
LLM providers. Use "serve" for the HTTP and WebSocket API or "practice" for a
text-only interview in the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is expanded")
	rootCmd.AddCommand(serveCmd, practiceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "intervox: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the dotenv file, if present, and then the config file so
// that ${VAR} references can name variables from either source.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
	}
	return cfg, err
}

// newLogger builds the process logger. The returned LevelVar lets config
// reloads change the level at runtime.
func newLogger(w io.Writer, srv config.ServerConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(srv.LogLevel.SlogLevel())
	opts := &slog.HandlerOptions{Level: level}
	if srv.LogFormat == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), level
	}
	return slog.New(slog.NewTextHandler(w, opts)), level
}
