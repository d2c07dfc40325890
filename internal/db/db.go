package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/circuitsapp/circuits-backend/internal/chat"
	"github.com/circuitsapp/circuits-backend/internal/models"
)

// Connect opens the MySQL connection and migrates the schema.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&chat.Session{},
		&chat.Message{},
	); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
