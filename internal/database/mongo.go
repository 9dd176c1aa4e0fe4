package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/scholar/internal/config"
	"github.com/BradenHooton/scholar/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB holds the client and the collection backing the account store.
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	Accounts *mongo.Collection
	logger   *slog.Logger
}

func ConnectMongo(ctx context.Context, cfg *config.MongoConfig, logger *slog.Logger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	logger.Info("mongo connection established",
		slog.String("database", cfg.Database),
		slog.String("collection", cfg.Collection),
	)

	return &MongoDB{
		Client:   client,
		Database: db,
		Accounts: db.Collection(cfg.Collection),
		logger:   logger,
	}, nil
}

func (m *MongoDB) Close(ctx context.Context) error {
	m.logger.Info("closing mongo connection")
	return m.Client.Disconnect(ctx)
}

func (m *MongoDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := m.Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo health check failed: %w", err)
	}
	return nil
}

func MapMongoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrConflict
	}

	return err
}
