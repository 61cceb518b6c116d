// Package cli is the relay command line: the daemon entry points and a
// one-shot fetch.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/The-Promised-Neverland/relay/internal/config"
)

type globalFlags struct {
	addr    string
	scratch string
	outbox  string
	inbox   string
}

// RootCmd builds the relay command tree.
func RootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Single-operator file relay",
		Long:          "Fetches URLs and inbound files on behalf of one operator and re-emits them to a destination.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	root.PersistentFlags().StringVar(&flags.scratch, "scratch", "", "scratch directory (overrides SCRATCH_DIR)")
	root.PersistentFlags().StringVar(&flags.outbox, "outbox", "", "outbox directory (overrides OUTBOX_DIR)")
	root.PersistentFlags().StringVar(&flags.inbox, "inbox", "", "inbox directory to watch (overrides INBOX_DIR)")

	root.AddCommand(
		ServeCmd(flags),
		InstallCmd(flags),
		UninstallCmd(flags),
		StartCmd(flags),
		StopCmd(flags),
		RestartCmd(flags),
		StatusCmd(flags),
		FetchCmd(flags),
	)
	return root
}

// load reads the environment and applies flag overrides.
func (f *globalFlags) load() *config.Config {
	var opts []config.Option
	if f.addr != "" {
		opts = append(opts, config.WithHTTPAddr(f.addr))
	}
	if f.scratch != "" {
		opts = append(opts, config.WithScratchDir(f.scratch))
	}
	if f.outbox != "" {
		opts = append(opts, config.WithOutboxDir(f.outbox))
	}
	if f.inbox != "" {
		opts = append(opts, config.WithInboxDir(f.inbox))
	}
	return config.New().Apply(opts...)
}
