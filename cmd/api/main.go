package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/circuitsapp/circuits-backend/internal/config"
	"github.com/circuitsapp/circuits-backend/internal/db"
	"github.com/circuitsapp/circuits-backend/internal/httpapi"
	"github.com/circuitsapp/circuits-backend/internal/store/rabbitmq"
	"github.com/circuitsapp/circuits-backend/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	// Profile provisioning is best-effort; a missing broker must not keep the
	// API from serving.
	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Printf("rabbit unavailable, profile events disabled: %v", err)
		rabbit = nil
	} else {
		defer rabbit.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, rds, rabbit)

	log.Printf("api listening on %s", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
