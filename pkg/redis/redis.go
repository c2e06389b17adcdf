package redis

import (
	"context"
	"errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"os"
	"strconv"
	"time"
)

const defaultKeyPrefix = "echobank:"

var ErrKeyNotFound = errors.New("redis: key not found")

// IRedis keeps short lived login sessions.
type IRedis interface {
	SetToken(ctx context.Context, key string, token string, expiration time.Duration) error
	GetToken(ctx context.Context, key string) (string, error)
	DeleteToken(ctx context.Context, key string) error
}

type redisClient struct {
	client *redis.Client
	prefix string
}

// New connects using REDIS_ADDRESS, REDIS_PASSWORD and REDIS_DB. Keys are
// namespaced with REDIS_KEY_PREFIX so the store can be shared.
func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	log := logrus.WithField("addr", redisAddr)

	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.WithField("error", err.Error()).Error("Failed to connect to Redis")
	} else {
		log.Info("Connected to Redis")
	}

	return NewFromClient(client, os.Getenv("REDIS_KEY_PREFIX"))
}

// NewFromClient wraps an existing client, e.g. one pointed at a test server.
// An empty prefix selects the default namespace.
func NewFromClient(client *redis.Client, prefix string) IRedis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &redisClient{client: client, prefix: prefix}
}

func (r *redisClient) key(k string) string {
	return r.prefix + k
}

func (r *redisClient) SetToken(ctx context.Context, key string, token string, expiration time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), token, expiration).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Failed to set token")
		return err
	}
	return nil
}

func (r *redisClient) GetToken(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	} else if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Failed to get token")
		return "", err
	}
	return val, nil
}

func (r *redisClient) DeleteToken(ctx context.Context, key string) error {
	removed, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Failed to delete token")
		return err
	}

	if removed == 0 {
		logrus.WithField("key", key).Debug("Token already gone")
	}
	return nil
}
