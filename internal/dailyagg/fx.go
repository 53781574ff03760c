package dailyagg

import (
	"github.com/smallbiznis/stitchboard/internal/dailyagg/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dailyagg.service",
	fx.Provide(service.NewService),
)
