package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/stitchboard/internal/principal"
	"go.uber.org/fx"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether a caller may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, p principal.Principal, object string, action string) error
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
