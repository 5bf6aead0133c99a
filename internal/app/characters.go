package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/palchat/internal/character"
	"github.com/MrWong99/palchat/internal/config"
)

// loadCharacters builds the registry from the configured source: a
// PostgreSQL table, a YAML file or the embedded catalog. The returned pool
// is nil for file sources; otherwise it stays open for readiness checks and
// the caller closes it.
func loadCharacters(ctx context.Context, cc config.CharactersConfig, defaultVoice string) (*character.Registry, *pgxpool.Pool, error) {
	var (
		cat  character.Catalog
		pool *pgxpool.Pool
		err  error
	)
	switch {
	case cc.PostgresDSN != "":
		cat, pool, err = loadFromPostgres(ctx, cc, defaultVoice)
	case cc.File != "":
		cat, err = character.LoadFile(cc.File, defaultVoice)
	default:
		cat, err = character.Builtin(defaultVoice)
	}
	if err != nil {
		return nil, nil, err
	}

	if cc.Default != "" {
		cat.Default = cc.Default
	}
	reg, err := cat.Registry()
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}
	return reg, pool, nil
}

func loadFromPostgres(ctx context.Context, cc config.CharactersConfig, defaultVoice string) (character.Catalog, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cc.PostgresDSN)
	if err != nil {
		return character.Catalog{}, nil, fmt.Errorf("connect postgres: %w", err)
	}
	cat, err := loadCatalog(ctx, character.NewPostgresSource(pool), cc.Seed, defaultVoice)
	if err != nil {
		pool.Close()
		return character.Catalog{}, nil, err
	}
	return cat, pool, nil
}

// catalogSource is the part of [character.PostgresSource] used at startup.
type catalogSource interface {
	Migrate(ctx context.Context) error
	Load(ctx context.Context) (character.Catalog, error)
	Seed(ctx context.Context, cat character.Catalog) error
}

// loadCatalog migrates the table and reads it. With seed set, an empty
// table is filled from the embedded catalog first.
func loadCatalog(ctx context.Context, src catalogSource, seed bool, defaultVoice string) (character.Catalog, error) {
	if err := src.Migrate(ctx); err != nil {
		return character.Catalog{}, err
	}
	cat, err := src.Load(ctx)
	if err != nil {
		return character.Catalog{}, err
	}
	if len(cat.Characters) > 0 || !seed {
		return cat, nil
	}

	builtin, err := character.Builtin(defaultVoice)
	if err != nil {
		return character.Catalog{}, err
	}
	if err := src.Seed(ctx, builtin); err != nil {
		return character.Catalog{}, err
	}
	slog.Info("seeded character table", "count", len(builtin.Characters))
	return src.Load(ctx)
}
