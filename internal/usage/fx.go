package usage

import (
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/usage/repository"
	"github.com/extractolabs/conversor/internal/usage/service"
)

var Module = fx.Module("usage",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
