// Command backfill rebuilds daily aggregates for past days and manages
// tenants outside the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/internal/clock"
	"github.com/smallbiznis/stitchboard/internal/config"
	"github.com/smallbiznis/stitchboard/internal/dailyagg"
	dailyaggdomain "github.com/smallbiznis/stitchboard/internal/dailyagg/domain"
	"github.com/smallbiznis/stitchboard/internal/masterdata"
	masterdatadomain "github.com/smallbiznis/stitchboard/internal/masterdata/domain"
	"github.com/smallbiznis/stitchboard/internal/migration"
	"github.com/smallbiznis/stitchboard/internal/observability"
	"github.com/smallbiznis/stitchboard/pkg/db"
	"github.com/smallbiznis/stitchboard/pkg/redisclient"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// The server uses node 1.
const snowflakeNode = 2

var rootCmd = &cobra.Command{
	Use:           "backfill",
	Short:         "Rebuild stitchboard daily aggregates",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackfill,
}

var (
	tenantFlag     string
	fromFlag       string
	toFlag         string
	allTenantsFlag bool
	timeoutFlag    time.Duration
)

type deps struct {
	fx.In

	Log        *zap.Logger
	Rollup     dailyaggdomain.Service
	MasterData masterdatadomain.Service
}

func main() {
	flags := rootCmd.Flags()
	flags.StringVar(&tenantFlag, "tenant", "", "tenant id to refresh")
	flags.StringVar(&fromFlag, "from", "", "first day to refresh (YYYY-MM-DD)")
	flags.StringVar(&toFlag, "to", "", "last day to refresh, inclusive (YYYY-MM-DD)")
	flags.BoolVar(&allTenantsFlag, "all-tenants", false, "refresh every active tenant")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 2*time.Hour, "overall deadline")
	rootCmd.MarkFlagsMutuallyExclusive("tenant", "all-tenants")
	_ = rootCmd.MarkFlagRequired("from")
	_ = rootCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(newTenantsCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "backfill:", err)
		os.Exit(1)
	}
}

// withDeps boots the persistence graph without the HTTP server or scheduler,
// runs fn and shuts the graph down again.
func withDeps(ctx context.Context, fn func(context.Context, deps) error) error {
	var d deps
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) { return snowflake.NewNode(snowflakeNode) }),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		masterdata.Module,
		dailyagg.Module,
		fx.Populate(&d),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, d)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	from, err := time.Parse(time.DateOnly, fromFlag)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := time.Parse(time.DateOnly, toFlag)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", toFlag, fromFlag)
	}
	if to.Sub(from) >= dailyaggdomain.MaxRangeDays*24*time.Hour {
		return fmt.Errorf("range exceeds %d days", dailyaggdomain.MaxRangeDays)
	}

	var tenantIDs []snowflake.ID
	if !allTenantsFlag {
		if tenantFlag == "" {
			return fmt.Errorf("either --tenant or --all-tenants is required")
		}
		id, err := snowflake.ParseString(tenantFlag)
		if err != nil {
			return fmt.Errorf("invalid --tenant: %w", err)
		}
		tenantIDs = []snowflake.ID{id}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()

	return withDeps(ctx, func(ctx context.Context, d deps) error {
		if allTenantsFlag {
			tenants, err := d.MasterData.ListActiveTenants(ctx)
			if err != nil {
				return err
			}
			for _, tenant := range tenants {
				tenantIDs = append(tenantIDs, tenant.ID)
			}
		}
		return backfillTenants(ctx, d.Log.Named("backfill"), d.Rollup, tenantIDs, from, to)
	})
}

// backfillTenants keeps going after a tenant fails and reports how many did.
func backfillTenants(ctx context.Context, log *zap.Logger, rollup dailyaggdomain.Service, tenantIDs []snowflake.ID, from, to time.Time) error {
	failed := 0
	for _, tenantID := range tenantIDs {
		results, err := rollup.RefreshRange(ctx, tenantID, from, to)
		written := 0
		for _, r := range results {
			written += r.RecordsWritten
		}
		if err != nil {
			failed++
			log.Error("tenant backfill failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("days_refreshed", len(results)),
				zap.Error(err),
			)
			continue
		}
		log.Info("tenant backfilled",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("days_refreshed", len(results)),
			zap.Int("records_written", written),
		)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tenants failed", failed, len(tenantIDs))
	}
	return nil
}
