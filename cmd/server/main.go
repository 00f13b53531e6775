package main

import (
	"fmt"
	"os"

	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "supportbot",
		Short: "Customer support chat backend",
		Long: `Serves the tenant chat API, the anonymous homebot endpoint and the
websocket chat transport, and manages the database schema.`,
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE:  runServe,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  runMigrate,
	}
	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Print a signed tenant token for local testing",
		RunE:  runToken,
	}
	chatCmd = &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a message over the websocket endpoint and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE:  runChat,
	}

	schemaPath     string
	embeddingDims  int
	tokenTenant    string
	tokenSubject   string
	chatServerURL  string
	chatBotID      string
	chatSessionID  string
	chatTokenValue string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&schemaPath, "openapi", os.Getenv("OPENAPI_SCHEMA_PATH"), "OpenAPI schema file (defaults to the embedded schema)")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().IntVar(&embeddingDims, "dimensions", 1536, "Embedding dimensions of the knowledge_chunks table")

	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "Tenant the token is issued for")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "dev", "Token subject")
	_ = tokenCmd.MarkFlagRequired("tenant")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatServerURL, "url", "ws://localhost:8081/ws/chat", "Websocket chat endpoint")
	chatCmd.Flags().StringVar(&chatBotID, "bot", "", "Bot to talk to")
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Resume a conversation using a specific session ID")
	chatCmd.Flags().StringVar(&chatTokenValue, "token", os.Getenv("SUPPORTBOT_TOKEN"), "Tenant token")
	_ = chatCmd.MarkFlagRequired("bot")
}

func newLogger(cfg *config.Config) *logger.Logger {
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	logConfig.File = cfg.Logging.File

	log := logger.New(logConfig)
	logger.SetGlobal(log)
	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
