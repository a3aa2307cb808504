// ezanswer server
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ezoidc/ezanswer/pkg/client"
	"github.com/ezoidc/ezanswer/pkg/credentials"
	"github.com/ezoidc/ezanswer/pkg/engine"
	"github.com/ezoidc/ezanswer/pkg/models"
	"github.com/ezoidc/ezanswer/pkg/providers"
	"github.com/ezoidc/ezanswer/pkg/server"
	"github.com/ezoidc/ezanswer/pkg/static"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("github.com/ezoidc/ezanswer@%s (%s)\n", static.Version, static.Commit)
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config, err := models.ReadConfiguration(configPath)
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(config.LogLevel)
		if err != nil {
			return err
		}
		log.Logger = log.Logger.Level(level)

		err = config.PreloadJWKS(ctx)
		if err != nil {
			return err
		}

		engine := engine.NewEngine(config)
		err = engine.Compile(ctx)
		if err != nil {
			return err
		}

		httpClient := config.Client()
		creds, err := credentials.Load(ctx, providers.NewResolver().WithDefaultProviders(),
			config.Credentials, config.Scopes, credentials.WithHTTPClient(httpClient))
		if err != nil {
			return err
		}
		answers := client.NewAnswerClient(httpClient, creds, config.Endpoint)

		gin.SetMode(gin.ReleaseMode)
		return server.NewAPI(engine, answers).Run()
	},
}

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	rootCmd := &cobra.Command{
		Use:           "ezanswer-server",
		Long:          `ezanswer server`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&configPath,
		"config", "c", os.Getenv("EZANSWER_CONFIG"),
		"Path to the configuration file (env: EZANSWER_CONFIG)",
	)

	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"start"})
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Send()
		os.Exit(1)
	}
}
