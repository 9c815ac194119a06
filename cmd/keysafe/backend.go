package main

import (
	"context"
	"fmt"

	"github.com/artilugio0/keysafe"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

func openBackend(ctx context.Context, cfg config) (keysafe.Backend, error) {
	switch cfg.Backend {
	case "keyring":
		return keysafe.NewKeyringBackend(cfg.Service), nil
	case "memory":
		return keysafe.NewMemoryBackend(), nil
	case "sqlite":
		return keysafe.OpenSQLite(ctx, cfg.SQLite.Path)
	case "sql":
		return keysafe.OpenSQL(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
	case "mongo":
		return keysafe.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	case "dynamodb", "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		if cfg.Backend == "dynamodb" {
			return keysafe.NewDynamoDBBackend(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table), nil
		}
		return keysafe.NewS3Backend(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.Prefix), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func openStore(ctx context.Context, cfg config, log zerolog.Logger) (*keysafe.Store, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	store := keysafe.NewStore(backend)

	sealKey, err := cfg.sealKey()
	if err == nil && sealKey != nil {
		var sealed keysafe.Backend
		if sealed, err = keysafe.NewSealedBackend(backend, sealKey); err == nil {
			store = keysafe.NewStore(sealed)
		}
	}
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seal backend: %w", err)
	}

	codec, err := keysafe.CodecByName(cfg.Codec)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	access, err := cfg.accessPolicy()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Debug().
		Str("backend", cfg.Backend).
		Str("codec", codec.Name()).
		Str("access", access.String()).
		Bool("sealed", sealKey != nil).
		Msg("store opened")

	return store.
		WithCodec(codec).
		WithClass(keysafe.Class(cfg.Class)).
		WithAccessPolicy(access).
		WithLogger(log), nil
}
