package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Tsipchain/driver-platform/internal/config"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/audit"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/auth"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/database"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/logging"
	"github.com/Tsipchain/driver-platform/internal/infrastructure/repositories"
	"github.com/Tsipchain/driver-platform/internal/services"
)

// Migrates the schema, seeds default casbin policies and optionally issues
// an operator token, printing the raw secret once.
func main() {
	issue := flag.Bool("issue-operator-token", false, "issue an operator token after migrating")
	role := flag.String("role", "operator", "operator token role (admin, operator, viewer)")
	groupTag := flag.String("group-tag", "", "restrict the token to a driver group tag")
	orgID := flag.Uint("org", 0, "restrict the token to an organization id")
	ttl := flag.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get underlying sql.DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("failed to run auto-migration", zap.Error(err))
	}
	if _, err := auth.NewCasbinService(db, cfg.CasbinModelPath); err != nil {
		logger.Fatal("failed to seed casbin policies", zap.Error(err))
	}
	logger.Info("migration completed")

	if !*issue {
		return
	}

	var org *uint
	if *orgID != 0 {
		id := *orgID
		org = &id
	}

	resolver := services.NewScopeResolver(
		repositories.NewOperatorTokenRepository(db),
		auth.NewHasher(cfg.TrialHashSalt),
		services.NewSystemClock(),
		audit.NewZapAuditLogger(logger),
		logger,
		cfg.AdminToken,
	)
	raw, token, err := resolver.IssueToken(context.Background(), *role, *groupTag, org, *ttl)
	if err != nil {
		logger.Fatal("failed to issue operator token", zap.Error(err))
	}

	fmt.Printf("operator token id=%d role=%s group_tag=%q\n", token.ID, token.Role, token.GroupTag)
	if token.ExpiresAt != nil {
		fmt.Printf("expires at %s\n", token.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println(raw)
}
