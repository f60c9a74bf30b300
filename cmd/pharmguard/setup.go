package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pharmguard-mcp-server/internal/setup"
)

func newSetupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with desktop clients",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Client config file (defaults to the platform location)")

	resolve := func() (string, error) {
		if configPath != "" {
			return configPath, nil
		}
		return setup.DesktopConfigPath()
	}

	var opts setup.Options
	desktop := &cobra.Command{
		Use:   "desktop",
		Short: "Add or update the pharmguard entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			entry, err := setup.Configure(path, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = color.New(color.FgGreen).Fprintf(w, "Registered %s in %s\n", setup.ServerKey, path)
			fmt.Fprintf(w, "  command: %s\n", entry.Command)
			for k, v := range entry.Env {
				fmt.Fprintf(w, "  %s=%s\n", k, v)
			}
			fmt.Fprintln(w, "Restart the client to load the server.")
			return nil
		},
	}
	desktop.Flags().StringVar(&opts.BinaryPath, "binary", "", "Path to the mcp-server-lite binary")
	desktop.Flags().StringVar(&opts.DataDir, "data-dir", "", "Data directory passed to the server")
	desktop.Flags().StringVar(&opts.Provider, "server-provider", "", "Explanation provider passed to the server")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether pharmguard is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolve()
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(path)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Config: %s\n", st.ConfigPath)
			if st.Configured {
				_, _ = color.New(color.FgGreen).Fprintln(w, "Status: registered")
				fmt.Fprintf(w, "Server: %s\n", st.ServerPath)
				if st.DataDir != "" {
					fmt.Fprintf(w, "Data:   %s\n", st.DataDir)
				}
			} else {
				_, _ = color.New(color.FgYellow).Fprintln(w, "Status: not registered")
			}
			for _, issue := range st.Issues {
				_, _ = color.New(color.FgRed).Fprintf(w, "  ! %s\n", issue)
			}
			return nil
		},
	}

	cmd.AddCommand(desktop, status)
	return cmd
}
