package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/stitchboard/internal/analytics"
	"github.com/smallbiznis/stitchboard/internal/approval"
	"github.com/smallbiznis/stitchboard/internal/audit"
	"github.com/smallbiznis/stitchboard/internal/authorization"
	"github.com/smallbiznis/stitchboard/internal/clock"
	"github.com/smallbiznis/stitchboard/internal/config"
	"github.com/smallbiznis/stitchboard/internal/dailyagg"
	"github.com/smallbiznis/stitchboard/internal/finance"
	"github.com/smallbiznis/stitchboard/internal/masterdata"
	"github.com/smallbiznis/stitchboard/internal/migration"
	"github.com/smallbiznis/stitchboard/internal/observability"
	"github.com/smallbiznis/stitchboard/internal/production"
	"github.com/smallbiznis/stitchboard/internal/scheduler"
	"github.com/smallbiznis/stitchboard/internal/server"
	"github.com/smallbiznis/stitchboard/pkg/db"
	"github.com/smallbiznis/stitchboard/pkg/redisclient"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		redisclient.Module,
		authorization.Module,

		// Domains
		masterdata.Module,
		production.Module,
		dailyagg.Module,
		analytics.Module,
		finance.Module,
		approval.Module,
		audit.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
