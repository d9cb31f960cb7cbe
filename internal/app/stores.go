package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"ground-truth-bench/internal/config"
	"ground-truth-bench/internal/repository"
	"ground-truth-bench/internal/repository/blob"
	"ground-truth-bench/internal/repository/sqlite"
	"ground-truth-bench/internal/storage"
)

// Stores bundles the persistence selected by configuration.
type Stores struct {
	Blobs       storage.Service
	Credentials repository.CredentialStore
	Questions   repository.QuestionRepository

	db *sql.DB
}

func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenStores connects the blob store and, when a backend asks for it, the
// sqlite database.
func OpenStores(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Stores, error) {
	blobs, err := BuildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	stores := &Stores{Blobs: blobs}

	if cfg.UsesSQLite() {
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		stores.db = db
		logger.WithField("path", cfg.Database.Path).Info("using sqlite database")
	}

	if cfg.Auth.Backend == config.BackendSQLite {
		stores.Credentials = sqlite.NewUserRepository(stores.db)
	} else {
		stores.Credentials = blob.NewCredentialStore(blobs, cfg.Storage.JSONPrefix, logger)
	}
	if cfg.Questions.Backend == config.BackendSQLite {
		stores.Questions = sqlite.NewQuestionRepository(stores.db)
	} else {
		stores.Questions = blob.NewQuestionRepository(blobs, cfg.Storage.JSONPrefix)
	}
	return stores, nil
}

// BuildStorage returns the S3 bucket client, or a directory store for local runs.
func BuildStorage(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (storage.Service, error) {
	if cfg.Storage.Blob == config.BlobFile {
		store, err := storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("open local storage: %w", err)
		}
		logger.WithField("dir", cfg.Storage.LocalDir).Info("using local blob storage")
		return store, nil
	}

	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey, ""),
		))
	} else if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, cfg.Storage.Bucket), nil
}

// NewLogger builds the process logger at the configured level.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
