package entitlement

import (
	"go.uber.org/fx"

	"github.com/extractolabs/conversor/internal/entitlement/repository"
	"github.com/extractolabs/conversor/internal/entitlement/service"
)

var Module = fx.Module("entitlement",
	fx.Provide(
		repository.New,
		service.NewService,
	),
)
