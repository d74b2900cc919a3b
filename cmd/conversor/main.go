package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/clock"
	"github.com/extractolabs/conversor/internal/config"
	"github.com/extractolabs/conversor/internal/migration"
	"github.com/extractolabs/conversor/internal/observability"
	"github.com/extractolabs/conversor/internal/scheduler"
	"github.com/extractolabs/conversor/internal/server"
	"github.com/extractolabs/conversor/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

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
