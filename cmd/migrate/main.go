package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/nickimizell/property-dashboard-sub000/internal/repository/postgres"
	"github.com/nickimizell/property-dashboard-sub000/migrations"
)

// Usage: migrate [--list] [dir]
// Without dir the migrations embedded in the binary are applied.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	var src fs.FS = migrations.FS
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			src = os.DirFS(a)
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		names, err := postgres.AppliedMigrations(ctx, db)
		if err != nil {
			log.Fatal(err)
		}
		for _, n := range names {
			fmt.Println(" ", n)
		}
		fmt.Printf("Total: %d applied\n", len(names))
		return
	}

	applied, err := postgres.Migrate(ctx, db, src)
	if err != nil {
		log.Fatalf("migrate: %v (applied before failure: %d)", err, len(applied))
	}
	log.Printf("Done: %d applied", len(applied))
}
