package main

import (
	"context"
	"fmt"
	"time"

	"crowdfund/internal/db"
	"crowdfund/internal/funding"
	"crowdfund/internal/payments"
	"crowdfund/internal/projects"
	"crowdfund/internal/storage"
	"crowdfund/internal/store"
	"crowdfund/internal/users"
	"crowdfund/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const presignExpiry = 15 * time.Minute

// app holds the clients and services every command builds the same way.
type app struct {
	config    *types.Config
	logger    *logrus.Logger
	awsConfig aws.Config

	pool     *pgxpool.Pool
	store    *store.Store
	objects  *storage.S3Storage
	payments *payments.Gateway

	funding  *funding.Service
	projects *projects.Service
	users    *users.Service
}

func newApp(ctx context.Context, cCtx *cli.Context) (*app, error) {
	config, err := loadConfig(cCtx)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(config)
	if err != nil {
		return nil, err
	}

	awsConfig, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := newObjectStorage(config, awsConfig)
	if err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	a := &app{
		config:    config,
		logger:    logger,
		awsConfig: awsConfig,
		pool:      pool,
		store:     store.New(pool),
		objects:   objects,
	}

	if err := a.buildServices(); err != nil {
		pool.Close()
		return nil, err
	}

	return a, nil
}

func newObjectStorage(config *types.Config, awsConfig aws.Config) (*storage.S3Storage, error) {
	client := s3.NewFromConfig(awsConfig)

	return storage.NewS3Storage(client, s3.NewPresignClient(client), storage.Config{
		Names: map[storage.Bucket]string{
			storage.BucketProjectImages:     config.ProjectImagesBucket,
			storage.BucketProfilePictures:   config.ProfilePicturesBucket,
			storage.BucketMilestoneEvidence: config.MilestoneEvidenceBucket,
		},
		Region:        awsConfig.Region,
		PublicBaseURL: config.StoragePublicBaseURL,
		PresignExpiry: presignExpiry,
	})
}

func (a *app) buildServices() error {
	gateway, err := payments.NewStripeGateway(a.config.StripeSecretKey, a.config.StripeWebhookSecret, a.logger)
	if err != nil {
		return err
	}
	a.payments = gateway

	fundingConfig := funding.ServiceConfig{
		Store:              a.store,
		Logger:             a.logger,
		RetryMaxTries:      a.config.FundingRetryMaxTries,
		ReconcileBatchSize: a.config.ReconcileBatchSize,
		ReconcileWorkers:   a.config.ReconcileWorkers,
		EffectMaxAttempts:  a.config.EffectMaxAttempts,
	}
	if gateway != nil {
		// leave the interface nil when payments are disabled
		fundingConfig.Payments = gateway
	} else {
		a.logger.Warn("STRIPE_SECRET_KEY not set, backings are recorded without payment intents")
	}

	a.funding, err = funding.NewService(fundingConfig)
	if err != nil {
		return fmt.Errorf("failed to build funding service: %w", err)
	}

	a.projects, err = projects.NewService(projects.ServiceConfig{
		Store:         a.store,
		Objects:       a.objects,
		Funding:       a.funding,
		Logger:        a.logger,
		RetryMaxTries: a.config.FundingRetryMaxTries,
	})
	if err != nil {
		return fmt.Errorf("failed to build projects service: %w", err)
	}

	a.users, err = users.NewService(a.store, a.objects, a.logger)
	if err != nil {
		return fmt.Errorf("failed to build users service: %w", err)
	}

	return nil
}

func (a *app) Close() {
	a.pool.Close()
}
