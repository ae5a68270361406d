package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/incentiva/internal/audit"
	"github.com/smallbiznis/incentiva/internal/campaign"
	"github.com/smallbiznis/incentiva/internal/clock"
	"github.com/smallbiznis/incentiva/internal/config"
	"github.com/smallbiznis/incentiva/internal/dataset"
	"github.com/smallbiznis/incentiva/internal/ledger"
	"github.com/smallbiznis/incentiva/internal/notification"
	"github.com/smallbiznis/incentiva/internal/observability"
	"github.com/smallbiznis/incentiva/internal/organization"
	"github.com/smallbiznis/incentiva/internal/reconcile"
	"github.com/smallbiznis/incentiva/internal/scheduler"
	"github.com/smallbiznis/incentiva/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the periodic reconciler.
		audit.Module,
		notification.Module,
		organization.Module,
		campaign.Module,
		dataset.Module,
		ledger.Module,
		reconcile.Module,

		// No server module: this binary only sweeps staged datasets.
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
