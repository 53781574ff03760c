package finance

import (
	"github.com/smallbiznis/stitchboard/internal/finance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("finance.service",
	fx.Provide(service.NewService),
)
