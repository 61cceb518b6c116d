package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/The-Promised-Neverland/relay/internal/daemon"
	"github.com/The-Promised-Neverland/relay/internal/destination"
	"github.com/The-Promised-Neverland/relay/internal/models"
	"github.com/The-Promised-Neverland/relay/internal/progress"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
	"github.com/The-Promised-Neverland/relay/pkg/logger"
)

const cliIdentity = "cli"

// consoleSurface prints every status edit. Edits carrying the cancel button
// are progress; the rest are final.
type consoleSurface struct {
	out      io.Writer
	progress *color.Color
	final    *color.Color
}

func newConsoleSurface(out io.Writer) *consoleSurface {
	return &consoleSurface{
		out:      out,
		progress: color.New(color.FgCyan),
		final:    color.New(color.Bold),
	}
}

func (s *consoleSurface) Edit(text string, buttons []progress.Button) error {
	c := s.final
	if len(buttons) > 0 {
		c = s.progress
	}
	_, err := c.Fprintln(s.out, text)
	return err
}

func FetchCmd(flags *globalFlags) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Relay one URL into the outbox and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, ok := models.ExtractURL(args[0])
			if !ok {
				return fmt.Errorf("not an http(s) link: %q", args[0])
			}
			cfg := flags.load()
			logger.InitFile(cfg.LogFile())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			outbox, err := destination.NewOutbox(cfg.OutboxDir())
			if err != nil {
				return err
			}
			comps, err := daemon.NewComponents(ctx, cfg, outbox)
			if err != nil {
				return err
			}

			identity := cfg.OperatorID()
			if identity == "" {
				identity = cliIdentity
			}
			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				comps.Orchestrator.Cancel(identity)
			}()

			res := comps.Orchestrator.Run(ctx, transfer.Request{
				Identity:  identity,
				Reference: models.URLRef(link),
				Name:      name,
				Surface:   newConsoleSurface(cmd.OutOrStdout()),
			})
			return report(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "override the delivered filename")
	return cmd
}

func report(out io.Writer, res transfer.Result) error {
	if res.Err == nil {
		color.New(color.FgGreen).Fprintf(out, "✅ %s -> %s\n", res.Receipt.Name, res.Receipt.Location)
		return nil
	}
	if errors.Is(res.Err, transfer.ErrUserCancelled) {
		color.New(color.FgYellow).Fprintln(out, "⚠️ "+res.Message)
	} else {
		color.New(color.FgRed).Fprintln(out, "❌ "+res.Message)
	}
	return res.Err
}
