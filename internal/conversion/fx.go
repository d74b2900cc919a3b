package conversion

import (
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/conversion/service"
)

var Module = fx.Module("conversion",
	fx.Provide(service.NewService),
)
