// Package queue owns the Redis connection backing the grading job queue.
package queue

import (
	"context"
	"log"
	"time"

	"github.com/Anzful/devtrain/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

// ConnectRedis opens the client and verifies it with a bounded ping. The
// grading workers block on this connection (BRPop), so a dead Redis is fatal
// at startup rather than a silent stall later.
func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	log.Println("INFO: Connected to Redis.")
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		log.Println("INFO: Redis connection closed.")
	}
}
