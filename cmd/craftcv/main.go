package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/clock"
	"github.com/craftcv/craftcv/internal/config"
	"github.com/craftcv/craftcv/internal/logger"
	"github.com/craftcv/craftcv/internal/migration"
	"github.com/craftcv/craftcv/internal/observability"
	"github.com/craftcv/craftcv/internal/scheduler"
	"github.com/craftcv/craftcv/internal/server"
	"github.com/craftcv/craftcv/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain services and HTTP surface
		server.Module,
		scheduler.Module,
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
