package db

import (
	"context"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
)

const TEST_POSTGRESQL_URL = "TEST_POSTGRESQL_URL"

// HasTestDatabase reports whether Postgres tests can run.
func HasTestDatabase() bool {
	return os.Getenv(TEST_POSTGRESQL_URL) != ""
}

func CreateTestPool() *pgxpool.Pool {
	connString := os.Getenv(TEST_POSTGRESQL_URL)
	if connString == "" {
		panic("TEST_POSTGRESQL_URL must be set.")
	}

	pool, err := Connect(context.Background(), connString)
	if err != nil {
		panic("Could not connect to the database: " + err.Error())
	}
	return pool
}

func TruncateTables(pool *pgxpool.Pool) {
	_, err := pool.Exec(context.Background(), "TRUNCATE reminder")
	if err != nil {
		panic("Could not truncate DB tables.")
	}
}
