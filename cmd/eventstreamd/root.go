package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/eventstream/config"
	"github.com/kbukum/eventstream/version"
)

const serviceName = "eventstreamd"

const rootLongDesc = `eventstreamd serves a resumable event stream.

Every event carries an id. Clients that reconnect with Last-Event-ID (or the
lastEventId query parameter) receive only the events after it.

  eventstreamd serve         Run the stream server
  eventstreamd tail <url>    Follow a stream and print its events`

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Resumable event stream server",
		Long:          rootLongDesc,
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to config.yml (default: search standard locations)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTailCmd(opts))
	return cmd
}

// load reads the configuration with the loader options from the global flags.
func (o *rootOptions) load() (*Config, error) {
	var loaderOpts []config.LoaderOption
	if o.configFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(o.configFile))
	}
	if o.envFile != "" {
		loaderOpts = append(loaderOpts, config.WithEnvFile(o.envFile))
	}

	cfg := &Config{}
	if err := config.LoadConfig(serviceName, cfg, loaderOpts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().Short()
	}
	return cfg, nil
}
