// -- cmd/root.go --
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browsergate/internal/config"
	"github.com/xkilldash9x/browsergate/internal/observability"
)

const (
	configName = "browsergate"
	configDir  = ".browsergate"
)

var (
	cfgFile string
	osExit  = os.Exit
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// app carries the configuration loaded by the root command to subcommands.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "browsergate",
		Short: "Browsergate is a browser automation tool server with a workflow-aware resilience layer.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initializeConfig(cfgFile)
			if err != nil {
				// Fall back to a console logger so the error is still visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: configName})
				return err
			}
			a.cfg = cfg
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting browsergate", zap.String("version", Version))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./browsergate.yaml or ~/.browsergate/browsergate.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		osExit(1)
	}
	observability.Sync()
}

// initializeConfig reads the config file (if any) and BROWSERGATE_* variables
// over the built-in defaults.
func initializeConfig(file string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	config.BindEnvironment(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	return config.NewConfigFromViper(v)
}
