package auth

import (
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/auth/service"
)

var Module = fx.Module("auth",
	fx.Provide(service.NewService),
)
