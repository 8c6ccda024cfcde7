// Command main applies or inspects the database schema. Production servers
// never migrate on boot, so deploys run "migrate up" first.
package main

import (
	"flag"
	"fmt"
	"log"

	"quill/internal/config"
	"quill/internal/database"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Usage = func() { fmt.Println("usage: migrate <up|status>") }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("expected exactly one command")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}

	switch flag.Arg(0) {
	case "up":
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Println("schema is up to date")
	case "status":
		tables, err := database.SchemaStatus(db)
		if err != nil {
			return err
		}
		missing := 0
		for _, t := range tables {
			state := "present"
			if !t.Present {
				state = "missing"
				missing++
			}
			log.Printf("%-20s %s", t.Table, state)
		}
		log.Printf("driver=%s env=%s missing=%d", cfg.DBDriver, cfg.Env, missing)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", flag.Arg(0))
	}
	return nil
}
