package commands

import (
	"github.com/spf13/cobra"

	"github.com/ZentaChain/zentalk-messenger/pkg/config"
)

var (
	configPath string
	logLevel   string
	dataDir    string

	cfg *config.Config
)

// Execute runs the command line
func Execute() error {
	root := &cobra.Command{
		Use:           "zentalk-messenger",
		Short:         "Serverless mesh messenger node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			if dataDir != "" {
				loaded.DataDir = dataDir
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			if err := loaded.ApplyLogLevel(); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "zentalk.yaml", "config file (defaults apply when missing)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory")

	root.AddCommand(runCmd(), identityCmd(), configCmd())
	return root.Execute()
}
