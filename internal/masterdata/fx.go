package masterdata

import (
	"github.com/smallbiznis/stitchboard/internal/masterdata/service"
	"go.uber.org/fx"
)

var Module = fx.Module("masterdata.service",
	fx.Provide(service.NewService),
)
