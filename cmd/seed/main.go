// Command seed populates the database with demo study groups.
package main

import (
	"context"
	"flag"
	"log"

	"studyhub/internal/bootstrap"
	"studyhub/internal/config"
	"studyhub/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numGroups := flag.Int("groups", defaults.NumGroups, "Number of groups to create")
	threads := flag.Int("threads", defaults.ThreadsPerGroup, "Threads per group")
	replies := flag.Int("replies", defaults.RepliesPerThread, "Replies per thread")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fast := flag.Bool("fast", false, "Store plaintext passwords instead of bcrypt hashes")
	randSeed := flag.Int64("seed", 0, "Random seed (0 picks one)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, _, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		NumUsers:         *numUsers,
		NumGroups:        *numGroups,
		ThreadsPerGroup:  *threads,
		RepliesPerThread: *replies,
		ResourceRoot:     cfg.ResourceRoot,
		SkipBcrypt:       *fast,
		RandSeed:         *randSeed,
	})

	ctx := context.Background()
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	sum, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d users, %d groups, %d threads, %d replies, %d reactions",
		sum.Users, sum.Groups, sum.Threads, sum.Replies, sum.Reactions)
	log.Printf("All seeded users have the password: %s", seed.DefaultPassword)
}
