package config

import (
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ConnectDB opens the Postgres connection. The handle is passed into every
// service explicitly; nothing reads it from package state.
func ConnectDB() *gorm.DB {
	dsn := os.Getenv("DB_URL")

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Duplicate-key errors must surface as gorm.ErrDuplicatedKey so the
		// registry can map them onto DuplicateInvoice.
		TranslateError: true,
	})
	if err != nil {
		panic("Failed to connect database")
	}

	return db
}
