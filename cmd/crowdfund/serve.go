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

	"crowdfund/internal/auth"
	"crowdfund/internal/db"
	"crowdfund/internal/jobs"
	"crowdfund/internal/server"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/urfave/cli/v2"
)

const (
	overdueMilestonesInterval = time.Hour
	closeProjectsInterval     = 10 * time.Minute
	jobTimeout                = 2 * time.Minute
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Start the HTTP API and the background jobs",
	Action: serve,
}

func serve(cCtx *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cCtx)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	config := a.config

	cognitoClient := cognitoidentityprovider.NewFromConfig(a.awsConfig)

	jwkCache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return fmt.Errorf("failed to initialize jwk cache: %w", err)
	}

	jwksURL := auth.JWKSURL(config.CognitoIssuerURL)
	if err := jwkCache.Register(ctx, jwksURL); err != nil {
		return fmt.Errorf("failed to register cognito jwks with cache: %w", err)
	}

	deps := server.Dependencies{
		Auth:     auth.NewClient(cognitoClient, config.CognitoClientID, logger),
		Verifier: auth.NewVerifier(jwkCache, config.CognitoIssuerURL, config.CognitoClientID),
		Projects: a.projects,
		Funding:  a.funding,
		Users:    a.users,
		Objects:  a.objects,
		Health: func(ctx context.Context) error {
			return db.Ping(ctx, a.pool)
		},
	}
	if a.payments != nil {
		deps.Webhooks = a.payments
	}

	srv, err := server.New(config, logger, deps)
	if err != nil {
		return err
	}

	manager, err := jobs.NewManager(logger, jobTimeout)
	if err != nil {
		return err
	}

	for _, job := range []jobs.Job{
		jobs.NewReconcileJob(a.funding, time.Duration(config.ReconcileIntervalSec)*time.Second, logger),
		jobs.NewCloseProjectsJob(a.projects, closeProjectsInterval, logger),
		jobs.NewOverdueMilestonesJob(a.projects, overdueMilestonesInterval),
	} {
		if err := manager.Register(job); err != nil {
			return err
		}
	}

	manager.Start()

	go func() {
		logger.WithField("port", config.ServerPort).Infof("server starting http://localhost:%d", config.ServerPort)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := manager.Stop(); err != nil {
		logger.WithError(err).Error("failed to stop jobs")
	}

	return srv.Stop(shutdownCtx)
}
