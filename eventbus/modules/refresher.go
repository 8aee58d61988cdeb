package modules

import (
	"context"
	"time"

	"github.com/playlog/backend/model"
	Logger "github.com/playlog/backend/utils/log"
)

type DiscoveryRefresher interface {
	RefreshDiscovery(ctx context.Context) (model.DiscoveryFeed, error)
}

type RefresherConfig struct {
	Name string
	// How often the discovery feed is refetched, usually a bit less than
	// the discovery cache TTL so that readers never see a miss.
	Interval time.Duration
}

// Refresher keeps the discovery cache warm.
type Refresher struct {
	Config RefresherConfig

	Catalog DiscoveryRefresher
}

func NewRefresher(config RefresherConfig, c DiscoveryRefresher) *Refresher {
	return &Refresher{Config: config, Catalog: c}
}

func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.Catalog.RefreshDiscovery(ctx); err != nil {
		Logger.Log.WithError(err).Warn("fail to refresh discovery feed")
	}
}

func (r *Refresher) RunModule(ctx context.Context) error {
	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) Name() string {
	return r.Config.Name
}
