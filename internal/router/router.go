// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/pgpoetry/poetry-api/internal/handler"
	"github.com/pgpoetry/poetry-api/internal/middleware"
	"github.com/pgpoetry/poetry-api/internal/model"
)

// Deps carries everything route registration needs. All services are
// constructed in main and injected here; nothing route-level reaches for
// globals.
type Deps struct {
	Auth      *handler.AuthHandler
	Poems     *handler.PoemHandler
	Comments  *handler.CommentHandler
	Favorites *handler.FavoriteHandler
	Feed      *handler.FeedHandler

	AuthMW        *middleware.AuthMiddleware
	GlobalLimiter *middleware.RateLimiter
	LoginLimiter  *middleware.RateLimiter
	Cache         echo.MiddlewareFunc
}

// Register wires every route of the API onto the Echo instance. The /api
// group carries the coarse global limiter; the login route stacks its own
// tighter limiter on top. Like-throttling happens inside the like handler
// because its responses must stay success-shaped.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	api := e.Group("/api", d.GlobalLimiter.Middleware())

	// Auth
	api.POST("/auth/register", d.Auth.Register)
	api.POST("/auth/login", d.Auth.Login, d.LoginLimiter.Middleware())
	api.POST("/auth/refresh", d.Auth.Refresh)
	api.POST("/auth/logout", d.Auth.Logout)
	api.GET("/me", d.Auth.Me, d.AuthMW.Require())
	api.GET("/me/favorites", d.Favorites.ListMine, d.AuthMW.Require())

	requireAdmin := []echo.MiddlewareFunc{d.AuthMW.Require(), middleware.RequireRole(model.RoleAdmin)}

	// Poems: public reads. The static segments (rss, id, analytics) are
	// matched ahead of the :slug parameter by Echo's router.
	api.GET("/poems", d.Poems.List, d.Cache)
	api.GET("/poems/rss", d.Feed.RSS, d.Cache)
	api.GET("/poems/:slug", d.Poems.GetBySlug)
	api.POST("/poems/:id/like", d.Poems.Like)

	// Poems: admin surface.
	api.POST("/poems", d.Poems.Create, requireAdmin...)
	api.PUT("/poems/:id", d.Poems.Update, requireAdmin...)
	api.DELETE("/poems/:id", d.Poems.Delete, requireAdmin...)
	api.GET("/poems/id/:id", d.Poems.GetByID, requireAdmin...)
	api.GET("/poems/analytics/top-liked", d.Poems.TopLiked, requireAdmin...)
	api.GET("/poems/analytics/top-viewed", d.Poems.TopViewed, requireAdmin...)

	// Comments
	api.GET("/poems/:id/comments", d.Comments.List)
	api.POST("/poems/:id/comments", d.Comments.Create, d.AuthMW.Optional())
	api.DELETE("/poems/comments/:id", d.Comments.Delete, d.AuthMW.Require())

	// Favorites
	api.POST("/poems/:id/favorite", d.Favorites.Add, d.AuthMW.Require())
	api.DELETE("/poems/:id/favorite", d.Favorites.Remove, d.AuthMW.Require())
	api.GET("/poems/:id/favorite", d.Favorites.Check, d.AuthMW.Require())
}
