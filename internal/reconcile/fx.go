package reconcile

import (
	"github.com/smallbiznis/incentiva/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(
		service.NewAllocator,
		service.NewService,
	),
)
