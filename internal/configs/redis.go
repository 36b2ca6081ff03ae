package config

import (
	"fmt"

	"github.com/redis/rueidis"
)

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(cfg RedisConfig) (rueidis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	client, err := rueidis.NewClient(
		rueidis.ClientOption{
			InitAddress:  []string{cfg.Addr},
			DisableCache: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return client, nil
}
