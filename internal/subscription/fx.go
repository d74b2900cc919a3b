package subscription

import (
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/subscription/service"
)

var Module = fx.Module("subscription",
	fx.Provide(service.NewService),
)
