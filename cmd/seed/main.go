// Command main fills a development database with demo posts and reactions.
package main

import (
	"context"
	"flag"
	"log"

	"quill/internal/cache"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/seed"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	presetName := flag.String("preset", "small", "Seeder preset to apply (tiny, small, busy)")
	presetFile := flag.String("presets", "", "YAML file with custom presets (defaults to the built-in set)")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randomSeed := flag.Int64("seed", 0, "Random seed for reproducible content (0 = random)")
	fast := flag.Bool("fast", false, "Hash passwords with the minimum bcrypt cost")
	force := flag.Bool("force", false, "Allow seeding a production database")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	preset, err := seed.LoadPreset(*presetFile, *presetName)
	if err != nil {
		log.Fatalf("Failed to load preset: %v", err)
	}
	log.Printf("Preset %s: %d users, %d admins, %d posts, clean=%v\n",
		preset.Name, preset.Users, preset.Admins, preset.Posts, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() && !*force {
		log.Fatal("Refusing to seed a production database without -force")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Cached posts from a previous dataset are evicted as ids are reused.
	cache.InitRedis(cfg.RedisURL)

	opts := seed.Options{Seed: *randomSeed}
	if *fast {
		opts.BcryptCost = bcrypt.MinCost
	}
	s := seed.NewSeeder(db, opts)
	ctx := context.Background()

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	sum, err := s.Run(ctx, preset)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ Created %d users, %d admins, %d posts (%d drafts), %d comments, %d likes, %d emoji reactions",
		sum.Users, sum.Admins, sum.Posts, sum.Drafts, sum.Comments, sum.Likes, sum.Emojis)
	log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
}
