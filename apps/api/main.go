package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	"github.com/smallbiznis/incentiva/internal/migration"
	"github.com/smallbiznis/incentiva/internal/observability"
	"github.com/smallbiznis/incentiva/internal/server"
	"github.com/smallbiznis/incentiva/pkg/db"
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
