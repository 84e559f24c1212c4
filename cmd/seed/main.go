package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"tenantgate/internal/config"
	"tenantgate/internal/events"
	"tenantgate/internal/logging"
	"tenantgate/internal/repository"
	"tenantgate/internal/services"
	"tenantgate/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func main() {
	ctx := context.Background()

	configFile := flag.String("config", "", "Path to config file")
	user := flag.String("user", "dev-user", "User who owns the demo tenants")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Level, "console", "seed")
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	store := repository.NewPostgresStore(pool)
	// Running services hold their own caches; a restart picks up seeded data.
	tenants := services.NewTenantService(store, events.Nop{}, logger)

	// 1. Find what the user already has so the seed can be re-run
	memberships, err := store.GetMembershipsForUser(ctx, *user)
	if err != nil {
		log.Fatalf("Failed to list memberships: %v", err)
	}
	existing := make(map[string]*models.Tenant)
	for _, m := range memberships {
		t, err := store.GetTenant(ctx, m.TenantID)
		if err != nil {
			log.Fatalf("Failed to load tenant %s: %v", m.TenantID, err)
		}
		existing[t.Slug] = t
	}

	// 2. Demo tenants
	seeds := []struct {
		Name       string
		Slug       string
		Tier       models.Tier
		WhiteLabel bool
		Theme      *models.ThemeConfig
	}{
		{"Acme Studio", "acme", models.Tier3, true, &models.ThemeConfig{
			CompanyName:          ptr("Acme Studio"),
			Tagline:              ptr("Made by Acme"),
			PrimaryColor:         ptr("#FF5A1F"),
			SecondaryColor:       ptr("#1F8FFF"),
			HidePlatformBranding: ptr(true),
		}},
		{"Globex Retail", "globex", models.Tier1, false, nil},
		{"Initech", "initech", models.TierFree, false, nil},
	}

	for i, s := range seeds {
		if t, ok := existing[s.Slug]; ok {
			logger.Info("Skipping existing tenant", "slug", s.Slug, "id", t.ID)
			continue
		}
		// the user owns the first tenant; the others belong to a demo owner
		// and give the switcher lower roles to show
		owner := *user
		if i > 0 {
			owner = "demo-owner"
		}
		t, err := tenants.CreateTenant(ctx, s.Name, s.Slug, s.Tier, owner)
		if err != nil {
			log.Printf("Failed to create tenant %s: %v", s.Slug, err)
			continue
		}
		if s.WhiteLabel {
			if _, err := tenants.SetWhiteLabel(ctx, t.ID, true); err != nil {
				log.Printf("Failed to enable white-label for %s: %v", s.Slug, err)
			}
		}
		if s.Theme != nil {
			if _, err := tenants.UpdateTheme(ctx, t.ID, s.Theme); err != nil {
				log.Printf("Failed to set theme for %s: %v", s.Slug, err)
			}
		}
		if i > 0 {
			role := models.RoleAdmin
			if i > 1 {
				role = models.RoleViewer
			}
			if err := tenants.AddMember(ctx, t.ID, *user, role, false); err != nil {
				log.Printf("Failed to add %s to %s: %v", *user, s.Slug, err)
			}
		}
		logger.Info("Seeded tenant", "slug", s.Slug, "id", t.ID, "tier", string(s.Tier))
	}
	logger.Info("Seeding complete!")
}
