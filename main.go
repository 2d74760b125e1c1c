package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"eventify-api/api"
	"eventify-api/events"
	"eventify-api/registration"
	"eventify-api/storage"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.StorageConnectionString, cfg.EventsTable, cfg.UsersTable, cfg.RegistrationsTable, cfg.RepairQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisConnectionString)
	if err != nil {
		// Azure-style "host:port,password=...,ssl=true" connection strings
		// are not URLs; fall back to parsing them by hand.
		parts := strings.Split(cfg.RedisConnectionString, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)
	cache := storage.NewCache(store, rc, cfg.CacheTTL)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != ""
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		if cfg.AuthAudience == "" || cfg.AuthDomain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.AuthDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.AuthAudience, "https://"+cfg.AuthDomain+"/")
	}

	logger := log.New()
	eventSvc := events.NewService(cache, logger)
	regSvc := registration.NewService(cache, logger)

	reconcilerCtx, cancelReconciler := context.WithCancel(context.Background())
	defer cancelReconciler()
	reconciler := registration.NewReconciler(cache, store, logger, cfg.RepairPollInterval)
	go reconciler.Run(reconcilerCtx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, eventSvc, regSvc, auth, logger)

	e.Logger.Fatal(e.Start(cfg.ListenAddr))
}
