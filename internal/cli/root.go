// Package cli provides the command-line interface for shopdesk.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/shopdesk/internal/client"
	"github.com/raphaelgruber/shopdesk/internal/config"
	"github.com/raphaelgruber/shopdesk/internal/db"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose      bool
	serverURL    string
	operatorID   string
	operatorName string

	// Global config, logger and server client
	cfg       config.Config
	logger    *slog.Logger
	apiClient *client.Client

	// Lazy-initialized database client, only for commands that write directly
	dbClient *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "shopdesk",
	Short: "Support chat operator console",
	Long: `Shopdesk is the operator side of a shop's support chat.

Conversations and messages stream live from the document store; replies are
written to the selected conversation and unread flags are cleared as soon as
an operator looks at a conversation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		if serverURL == "" {
			serverURL = cfg.ServerURL
		}
		if operatorID == "" {
			operatorID = cfg.OperatorID
		}
		if operatorName == "" {
			operatorName = cfg.OperatorName
		}
		apiClient = client.New(serverURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
	},
}

// getDB connects to the database on first use.
func getDB(ctx context.Context) (*db.Client, error) {
	if dbClient != nil {
		return dbClient, nil
	}

	dbCfg := db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}

	c, err := db.NewClient(ctx, dbCfg, logger, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := c.InitSchema(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	dbClient = c
	return dbClient, nil
}

func operator() client.Operator {
	return client.Operator{ID: operatorID, Name: operatorName}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $SHOPDESK_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&operatorID, "operator", "", "operator id (default $SHOPDESK_OPERATOR_ID)")
	rootCmd.PersistentFlags().StringVar(&operatorName, "name", "", "operator display name (default $SHOPDESK_OPERATOR_NAME)")

	// Add subcommands
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}
