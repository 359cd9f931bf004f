package main

import (
	"go.uber.org/zap"

	"github.com/cppla/ledger/config"
	"github.com/cppla/ledger/ledger"
	"github.com/cppla/ledger/models"
	"github.com/cppla/ledger/routes"
	"github.com/cppla/ledger/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	policy, err := cfg.LedgerPolicy()
	if err != nil {
		utils.Sugar.Fatalf("ledger policy: %v", err)
	}

	db := config.InitDatabase(models.All()...)

	opts := []ledger.Option{ledger.WithLogger(utils.Logger.Named("ledger"))}
	if cfg.AchievementCatalogPath != "" {
		catalog, err := ledger.LoadCatalogFile(cfg.AchievementCatalogPath)
		if err != nil {
			utils.Sugar.Fatalf("achievement catalog: %v", err)
		}
		opts = append(opts, ledger.WithCatalog(catalog))
		utils.Logger.Info("loaded achievement catalog", zap.String("path", cfg.AchievementCatalogPath), zap.Int("entries", catalog.Len()))
	}
	hub := utils.NewHub()
	opts = append(opts, ledger.WithNotifier(hub))
	l := ledger.New(db, policy, opts...)

	sched, err := utils.StartLedgerJobs(l, cfg)
	if err != nil {
		utils.Sugar.Fatalf("scheduler: %v", err)
	}
	r := routes.SetupRouter(l, hub, cfg)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	stopJobs := func() {
		if err := sched.Shutdown(); err != nil {
			utils.Sugar.Warnf("scheduler shutdown: %v", err)
		}
	}
	if err := utils.GraceServer(":"+cfg.AppPort, r, stopJobs); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
	}
}
