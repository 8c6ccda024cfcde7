// Command main grants and revokes the administrator role.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/repository"
	"quill/internal/service"
)

const usage = `Usage:
  admin promote <username>   grant the admin role
  admin demote <username>    revoke the admin role
  admin list                 list administrators`

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if err := run(context.Background(), flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	// The API caches users; evict them so role changes apply immediately.
	cache.InitRedis(cfg.RedisURL)

	users := repository.NewUserRepository(db)
	svc := service.NewUserService(users)

	switch args[0] {
	case "promote", "demote":
		if len(args) != 2 {
			flag.Usage()
			return fmt.Errorf("%s needs a username", args[0])
		}
		user, err := users.GetByUsername(ctx, args[1])
		if err != nil {
			return err
		}
		admin := args[0] == "promote"
		if user.IsAdmin == admin {
			log.Printf("%s (id %d) already has admin=%t", user.Username, user.ID, admin)
			return nil
		}
		if _, err := svc.SetAdmin(ctx, user.ID, admin); err != nil {
			return err
		}
		log.Printf("✅ %s (id %d) admin=%t", user.Username, user.ID, admin)
		return nil

	case "list":
		admins, err := users.ListAdmins(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSINCE")
		for _, a := range admins {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Username, a.Email, a.CreatedAt.Format("2006-01-02"))
		}
		return w.Flush()

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}
