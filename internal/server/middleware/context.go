package middleware

import (
	"context"

	"github.com/OFFIS-RIT/graphvec/internal/config"
	"github.com/OFFIS-RIT/graphvec/internal/queue"
	"github.com/OFFIS-RIT/graphvec/pkg/query"

	"github.com/labstack/echo/v4"
)

// Service is the part of the application the handlers use.
type Service interface {
	Config() *config.Config
	Engine() *query.Engine
	Invalidate(ctx context.Context) error
}

// BuildPublisher enqueues rebuild requests for the worker.
type BuildPublisher interface {
	PublishBuild(ctx context.Context, req queue.BuildRequest) error
}

// App carries the shared dependencies of every request. Publisher is nil
// when no message broker is configured.
type App struct {
	Service   Service
	Publisher BuildPublisher
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
