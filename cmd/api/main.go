package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/fitness-api/internal/config"
	"github.com/jwalitptl/fitness-api/internal/handler"
	"github.com/jwalitptl/fitness-api/internal/handler/password"
	"github.com/jwalitptl/fitness-api/internal/middleware"
	"github.com/jwalitptl/fitness-api/internal/router"
	"github.com/jwalitptl/fitness-api/pkg/logger"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
	"github.com/jwalitptl/fitness-api/pkg/security"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "failed to load configuration")
	}

	log := logger.NewLogger(&logger.Config{
		Level:   logger.ParseLevel(cfg.Log.Level),
		Console: cfg.Log.Format == "text",
	})
	log.SetGlobal()

	validator, err := security.NewPolicyValidator(cfg.Password)
	if err != nil {
		log.Fatal(err, "invalid password policy")
	}
	policy := security.NewPolicyStore(validator)
	log.Info("password policy loaded",
		"min_length", cfg.Password.MinLength,
		"requirements", validator.DescribeRequirements())

	watching := cfg.WatchPasswordPolicy(func(p security.PolicyConfig, err error) {
		if err == nil {
			err = policy.Swap(p)
		}
		if err != nil {
			log.Error(err, "password policy reload rejected, keeping previous policy")
			return
		}
		log.Info("password policy reloaded", "min_length", p.MinLength, "rules", p.Rules)
	})
	if !watching {
		log.Warn("no config file loaded, password policy hot reload disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, "fitness")

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		handler.NewHandler(reg),
		password.NewHandler(policy, m),
		m,
		router.RouterConfig{
			DefaultThrottle: middleware.ThrottlePolicy{
				Name:  "default",
				Limit: cfg.Throttle.Default.Limit,
				TTL:   cfg.Throttle.Default.TTL,
			},
			AuthThrottle: middleware.ThrottlePolicy{
				Name:  "auth",
				Limit: cfg.Throttle.Auth.Limit,
				TTL:   cfg.Throttle.Auth.TTL,
			},
			MetricsEnabled: cfg.Monitoring.PrometheusEnabled,
			MetricsPath:    cfg.Monitoring.MetricsPath,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}
