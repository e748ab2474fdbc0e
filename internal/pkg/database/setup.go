package database

import (
	"fmt"
	"log"
	"time"

	"github.com/mpolivanov/lavagate/app/models"
	"github.com/mpolivanov/lavagate/internal/pkg/env"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the shared GORM handle. SetupDatabase must run first.
func GetDB() *gorm.DB {
	return DB
}

func SetupDatabase() {
	var err error
	// _busy_timeout makes concurrent sweep/webhook writers wait instead of
	// failing immediately; callers still treat SQLITE_BUSY as transient.
	dsn := fmt.Sprintf("%s?_busy_timeout=%s&_journal_mode=WAL",
		env.GetEnv("DB_PATH", "data/lavagate.db"),
		env.GetEnv("DB_BUSY_TIMEOUT_MS", "5000"),
	)

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
		if err == nil {
			DB.AutoMigrate(
				&models.PaymentEvent{},
				&models.Membership{},
				&models.ShortLink{},
			)

			return
		}

		log.Printf("Failed to open database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}
