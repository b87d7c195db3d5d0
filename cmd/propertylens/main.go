package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"propertylens/config"
	"propertylens/internal/address"
	"propertylens/internal/api"
	"propertylens/internal/database"
	"propertylens/internal/geocoding"
	"propertylens/internal/importer"
	"propertylens/internal/matching"
	"propertylens/internal/profiler"
)

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	root := &cobra.Command{
		Use:   "propertylens",
		Short: "Link Land Registry sales to EPC records and derive property profiles",
	}

	root.AddCommand(
		serveCmd(cfg, logger),
		importSalesCmd(cfg, logger),
		importEPCCmd(cfg, logger),
		populateProfilesCmd(cfg, logger),
		clearProfilesCmd(cfg, logger),
	)

	if err := root.Execute(); err != nil {
		logger.WithError(err).Fatal("Command failed")
	}
}

func openDatabase(cfg *config.Config, logger *logrus.Logger) *database.Database {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		os.MkdirAll(dir, 0755)
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	return db
}

func serveCmd(cfg *config.Config, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP map API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg, logger)
			defer db.Close()

			router := gin.Default()
			router.Use(cors.Default())
			api.SetupRoutes(router, db, logger)

			logger.Infof("Starting server on port %s", cfg.Port)
			return router.Run(":" + cfg.Port)
		},
	}
}

func importSalesCmd(cfg *config.Config, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import-sales <csv>",
		Short: "Import Land Registry price-paid data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg, logger)
			defer db.Close()

			im := importer.NewImporter(db, logger, cfg.Importer.BatchSize)
			count, err := im.ImportSales(args[0])
			if err != nil {
				return err
			}
			logger.Infof("Imported %d sales", count)
			return nil
		},
	}
}

func importEPCCmd(cfg *config.Config, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import-epc <csv>",
		Short: "Import EPC certificate data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg, logger)
			defer db.Close()

			im := importer.NewImporter(db, logger, cfg.Importer.BatchSize)
			count, err := im.ImportEPC(args[0])
			if err != nil {
				return err
			}
			logger.Infof("Imported %d EPC records", count)
			return nil
		},
	}
}

func populateProfilesCmd(cfg *config.Config, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "populate-profiles",
		Short: "Match sales to EPC records and upsert property profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg, logger)
			defer db.Close()

			cacheDir := cfg.Geocoding.CacheDir
			if cacheDir == "" {
				cacheDir = filepath.Join(os.TempDir(), "propertylens", "geocode_cache")
			}

			normalizer := address.NewNormalizer(cfg.Matching.NoiseWords)
			matcher := matching.NewMatcher(normalizer, matching.Config{
				FuzzyThreshold: cfg.Matching.FuzzyThreshold,
				CharThreshold:  cfg.Matching.CharThreshold,
			}, logger)
			geocoder := geocoding.NewGeocoder(logger, cfg.Geocoding.BaseURL, cacheDir)
			builder := profiler.NewBuilder(db, matcher, geocoder, logger)

			// Interrupts stop the run after the current group finishes
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := builder.Run(ctx)
			logger.Infof("Created/updated %d profiles, %d skipped, %d errors", result.Created, result.Skipped, result.Errored)
			return err
		},
	}
}

func clearProfilesCmd(cfg *config.Config, logger *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-profiles",
		Short: "Delete all property profiles to force recomputation",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := openDatabase(cfg, logger)
			defer db.Close()

			count, err := db.ClearProfiles()
			if err != nil {
				return err
			}
			logger.Infof("Deleted %d property profiles", count)
			return nil
		},
	}
}
