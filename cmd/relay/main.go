package main

import (
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"

	"cipherchat/internal/logger"
	"cipherchat/internal/relay"
)

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"))

	var store relay.Store
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisURL})
		store = relay.NewRedisStore(rdb)
		log.Info("using redis storage", "addr", redisURL)
	} else {
		store = relay.NewMemoryStore()
		log.Info("using in-memory storage")
	}

	addr := os.Getenv("RELAY_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := relay.NewServer(store, log)
	log.Info("relay listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
