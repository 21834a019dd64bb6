package main

import (
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bidsmith/internal/config"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "bidsmith",
		Short:         "Solicitation analysis and proposal drafting service",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd, v)
		},
	}

	rootCmd.AddCommand(
		newLambdaCmd(v),
		newServeCmd(v),
	)
	return rootCmd
}

func newLambdaCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function URL handler (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd, v)
		},
	}
}

func runLambda(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	app, err := wireApp(cmd.Context(), cfg)
	if err != nil {
		slog.Error("failed to wire application", "err", err)
		return err
	}
	lambda.Start(app.handler.Handle)
	return nil
}

// loadConfig reads settings and installs the process logger.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		return config.Config{}, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	return cfg, nil
}
