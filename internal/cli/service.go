package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/The-Promised-Neverland/relay/internal/daemon"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

func manager(flags *globalFlags) *daemon.DaemonManager {
	cfg := flags.load()
	logger.Init(cfg.LogFile())
	return daemon.NewDaemonManager(cfg)
}

func ServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay in the foreground (also the service entry point)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return manager(flags).RunDaemon()
		},
	}
}

// serviceCmd wraps a service-manager action with a colored confirmation.
func serviceCmd(use, short, done string, flags *globalFlags, action func(*daemon.DaemonManager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := action(manager(flags)); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✅ "+done)
			return nil
		},
	}
}

func InstallCmd(flags *globalFlags) *cobra.Command {
	return serviceCmd("install", "Install the relay as an OS service", "Service installed", flags,
		(*daemon.DaemonManager).InstallDaemon)
}

func UninstallCmd(flags *globalFlags) *cobra.Command {
	return serviceCmd("uninstall", "Stop and remove the OS service", "Service uninstalled", flags,
		(*daemon.DaemonManager).UninstallDaemon)
}

func StartCmd(flags *globalFlags) *cobra.Command {
	return serviceCmd("start", "Start the installed service", "Service started", flags,
		(*daemon.DaemonManager).StartDaemon)
}

func StopCmd(flags *globalFlags) *cobra.Command {
	return serviceCmd("stop", "Stop the installed service", "Service stopped", flags,
		(*daemon.DaemonManager).StopDaemon)
}

func RestartCmd(flags *globalFlags) *cobra.Command {
	return serviceCmd("restart", "Restart the installed service", "Service restarted", flags,
		(*daemon.DaemonManager).RestartDaemon)
}

func StatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the service state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := manager(flags).Status()
			if err != nil {
				return err
			}
			c := color.New(color.FgYellow)
			if st == "running" {
				c = color.New(color.FgGreen)
			}
			c.Fprintln(cmd.OutOrStdout(), st)
			return nil
		},
	}
}
