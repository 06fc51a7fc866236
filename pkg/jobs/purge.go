package jobs

import (
	"context"

	"github.com/omamori-atelier/omamori-api/pkg/omamori/services"
	"github.com/omamori-atelier/omamori-api/pkg/tools"
	"github.com/robfig/cron/v3"
)

// ScheduleDailyPurge sets up a cron job that removes omamori left in the
// trash beyond the retention window, every day.
func ScheduleDailyPurge(ctx context.Context, svc *services.OmamoriService) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@daily", func() {
		tools.Dispatch(context.Background(), "purge_trashed", func(ctx context.Context) error {
			return svc.PurgeTrashed(ctx)
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}
