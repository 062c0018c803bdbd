package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
)

const redisPrefix = "drafts:"

// Redis stores each draft as a JSON string under drafts:<key>.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to the server at url (redis://host:port/db).
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("storage: redis ping: %w", err)
	}
	return &Redis{client: client, prefix: redisPrefix}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (*models.Draft, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("storage: draft %s: %w", key, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	var d models.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", key, err)
	}
	return &d, nil
}

func (r *Redis) Set(ctx context.Context, d models.Draft) error {
	if err := ValidateKey(d.Key); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", d.Key, err)
	}
	if err := r.client.Set(ctx, r.prefix+d.Key, data, 0).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", d.Key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("storage: redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]models.DraftMetadata, error) {
	out := []models.DraftMetadata{}
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		d, err := r.Get(ctx, strings.TrimPrefix(iter.Val(), r.prefix))
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d.Metadata())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage: redis scan: %w", err)
	}
	slices.SortFunc(out, func(a, b models.DraftMetadata) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
