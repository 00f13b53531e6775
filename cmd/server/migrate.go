package main

import (
	"supportbot/backend/internal/knowledge"
	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/config"

	"github.com/spf13/cobra"
)

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.New()
	log := newLogger(cfg)
	defer log.Close()

	db, err := config.NewDB(cmd.Context(), cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		return err
	}

	if err := db.AutoMigrate(&models.Bot{}, &models.ChatSession{}, &models.Message{}); err != nil {
		log.LogError(err, "Failed to migrate database")
		return err
	}

	if cfg.Retrieval.Backend == "" || cfg.Retrieval.Backend == "pgvector" {
		if err := knowledge.EnsureSchema(db, embeddingDims); err != nil {
			log.LogError(err, "Failed to create knowledge schema")
			return err
		}
	}

	log.Info("Database schema is up to date", "retrieval_backend", cfg.Retrieval.Backend)
	return nil
}
