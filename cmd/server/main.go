package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pgpoetry/poetry-api/internal/auth"
	"github.com/pgpoetry/poetry-api/internal/config"
	"github.com/pgpoetry/poetry-api/internal/database"
	"github.com/pgpoetry/poetry-api/internal/handler"
	"github.com/pgpoetry/poetry-api/internal/middleware"
	"github.com/pgpoetry/poetry-api/internal/queue"
	"github.com/pgpoetry/poetry-api/internal/repository"
	"github.com/pgpoetry/poetry-api/internal/router"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()
	cacheCfg := config.LoadCacheConfig()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient() // nil disables the response cache
	if rdb == nil {
		log.Println("redis unavailable, response cache disabled")
	}

	users := repository.NewUserRepo(db)
	poems := repository.NewPoemRepo(db)
	comments := repository.NewCommentRepo(db)
	favorites := repository.NewFavoriteRepo(db)

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays)
	authMW := middleware.NewAuthMiddleware(tokens, users)

	globalLimiter := middleware.NewRateLimiter(rlCfg.Global)
	loginLimiter := middleware.NewRateLimiter(rlCfg.Login)
	likeLimiter := middleware.NewRateLimiter(rlCfg.Like)
	defer globalLimiter.Close()
	defer loginLimiter.Close()
	defer likeLimiter.Close()

	brokerConfigured := os.Getenv("RABBITMQ_URL") != "" || os.Getenv("AMQP_URL") != ""
	if brokerConfigured {
		go queue.StartPoemConsumer()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	router.Register(e, router.Deps{
		Auth:          handler.NewAuthHandler(cfg, users, tokens),
		Poems:         handler.NewPoemHandler(poems, likeLimiter, brokerConfigured),
		Comments:      handler.NewCommentHandler(comments, poems),
		Favorites:     handler.NewFavoriteHandler(favorites, poems),
		Feed:          handler.NewFeedHandler(poems, siteURL()),
		AuthMW:        authMW,
		GlobalLimiter: globalLimiter,
		LoginLimiter:  loginLimiter,
		Cache:         middleware.NewRedisCache(cacheCfg, rdb),
	})

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	// Block until interrupted, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

func siteURL() string {
	if v := os.Getenv("SITE_URL"); v != "" {
		return v
	}
	return "https://pgpoetry.com"
}
