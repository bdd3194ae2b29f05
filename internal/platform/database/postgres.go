package database

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/Anzful/devtrain/internal/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

var DB *sql.DB

// Connect opens the pool and verifies it with a bounded ping. The pool is
// shared by the API handlers and the grading workers; a grading run holds a
// connection for its finalize transaction, so the pool is sized with the
// worker count in mind.
func Connect() {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}

	DB.SetMaxOpenConns(20 + config.AppConfig.GradingWorkerCount)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}

	log.Println("INFO: Connected to PostgreSQL.")
}

func Close() {
	if DB != nil {
		DB.Close()
		log.Println("INFO: Database connection closed.")
	}
}
