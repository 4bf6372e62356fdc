// Command migrate applies the SQL schema migrations for the exam-integrity
// database. It reads DATABASE_URL from the environment via the shared
// config loader.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/edvigil/edvigil-backend/internal/config"
)

func main() {
	dir := flag.String("path", "migrations", "directory containing migration files")
	flag.Parse()

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open migrator: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return
	}

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("up: %v", err)
		}
		fmt.Println("schema is up to date")
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("down: %v", err)
		}
		fmt.Println("schema rolled back")
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatalf("version: %v", err)
		}
		fmt.Printf("version %d (dirty=%t)\n", v, dirty)
	case "force":
		if len(args) < 2 {
			log.Fatal("force needs a version argument")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("bad version %q: %v", args[1], err)
		}
		if err := m.Force(v); err != nil {
			log.Fatalf("force: %v", err)
		}
		fmt.Printf("forced to version %d\n", v)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("usage: migrate [-path dir] <up|down|version|force N>")
	flag.PrintDefaults()
}
