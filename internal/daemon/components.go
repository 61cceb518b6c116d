package daemon

import (
	"context"
	"fmt"

	"github.com/The-Promised-Neverland/relay/internal/config"
	"github.com/The-Promised-Neverland/relay/internal/destination"
	"github.com/The-Promised-Neverland/relay/internal/metrics"
	"github.com/The-Promised-Neverland/relay/internal/registry"
	"github.com/The-Promised-Neverland/relay/internal/resolver"
	"github.com/The-Promised-Neverland/relay/internal/service"
	"github.com/The-Promised-Neverland/relay/internal/thumbnail"
	"github.com/The-Promised-Neverland/relay/internal/transfer"
)

// Components is the transfer core shared by the daemon and one-shot commands.
type Components struct {
	Registry     *registry.Registry
	Orchestrator *transfer.Orchestrator
	Previews     *thumbnail.PreviewStore
	Service      *service.Service
	Metrics      *metrics.Metrics
	Destination  destination.Destination
}

// NewComponents wires the orchestrator from cfg. dest overrides the
// configured destination when non-nil.
func NewComponents(ctx context.Context, cfg *config.Config, dest destination.Destination) (*Components, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create working directories: %w", err)
	}
	if dest == nil {
		d, err := NewDestination(ctx, cfg)
		if err != nil {
			return nil, err
		}
		dest = d
	}
	probe := thumbnail.NewProbe(cfg.FFprobePath(), cfg.ThumbTimeout())
	c := &Components{
		Registry:    registry.New(),
		Previews:    thumbnail.NewPreviewStore(cfg.ScratchDir(), cfg.FFmpegPath(), cfg.ThumbTimeout()),
		Service:     service.NewService(cfg.ScratchDir()),
		Metrics:     metrics.New(),
		Destination: dest,
	}
	c.Orchestrator = transfer.New(cfg, transfer.Deps{
		Registry:    c.Registry,
		Resolver:    resolver.NewSet(resolver.WithTimeout(cfg.HTTPTimeout())),
		Destination: dest,
		Deriver:     thumbnail.NewDeriver(cfg.FFmpegPath(), probe, cfg.ThumbTimeout()),
		Prober:      probe,
		Previews:    c.Previews,
		Space:       c.Service,
		Metrics:     c.Metrics,
	})
	return c, nil
}

// NewDestination builds the destination named by cfg.Destination().
func NewDestination(ctx context.Context, cfg *config.Config) (destination.Destination, error) {
	switch cfg.Destination() {
	case config.DestinationOutbox:
		return destination.NewOutbox(cfg.OutboxDir())
	case config.DestinationMinio:
		return destination.NewMinio(ctx, destination.MinioConfig{
			Endpoint:  cfg.MinioEndpoint(),
			AccessKey: cfg.MinioAccessKey(),
			SecretKey: cfg.MinioSecretKey(),
			Bucket:    cfg.MinioBucket(),
			Region:    cfg.MinioRegion(),
			UseSSL:    cfg.MinioUseSSL(),
		})
	default:
		return nil, fmt.Errorf("unknown destination %q", cfg.Destination())
	}
}
