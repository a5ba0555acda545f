package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Applies every .sql file under migrations/ in lexical order.
func main() {
	_ = godotenv.Load()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		fmt.Println("DATABASE_URL environment variable not set")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Printf("Failed to connect to DB: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		fmt.Printf("Failed to list migrations: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlFile, err := os.ReadFile(f)
		if err != nil {
			fmt.Printf("Failed to read %s: %v\n", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(sqlFile)); err != nil {
			fmt.Printf("Migration %s failed: %v\n", f, err)
			os.Exit(1)
		}
		fmt.Printf("Applied %s\n", f)
	}
	fmt.Println("Migration successful.")
}
