package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"jstagram/internal/util"
	"jstagram/pkg/storage"
	"jstagram/services/gallery/internal/app"
	"jstagram/services/gallery/internal/config"
)

var (
	configPath string
	cfg        config.FileConfig
)

var rootCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Picture gallery service",
	Long: "gallery stores titled pictures and serves them over a small JSON API.\n\n" +
		"Configuration is read from --config, $GALLERY_CONFIG or ./config.yaml,\n" +
		"then overridden by environment variables.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(listCmd)
}

func loadConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	util.InitLogger(cfg.LogLevel)
	return nil
}

func appConfig(c config.FileConfig) app.Config {
	return app.Config{
		CatalogBackend: c.CatalogBackend,
		DatabaseURL:    c.DatabaseURL,
		SeedSamples:    c.SeedSamples,
		AssetBackend:   c.AssetBackend,
		AssetDir:       c.AssetDir,
		Minio: storage.MinioConfig{
			Endpoint:  c.MinioEndpoint,
			AccessKey: c.MinioAccessKey,
			SecretKey: c.MinioSecretKey,
			Bucket:    c.MinioBucket,
			UseSSL:    c.MinioUseSSL,
			KeyPrefix: c.MinioKeyPrefix,
		},
		PublicPrefix: c.PublicPrefix,
	}
}
