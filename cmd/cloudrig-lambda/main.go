// Command cloudrig-lambda is the AWS Lambda entry point. One binary
// serves every trigger; the handler setting selects the workflow.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/viper"

	"github.com/cloudrig/CloudRIG/internal/application"
	"github.com/cloudrig/CloudRIG/internal/config"
	"github.com/cloudrig/CloudRIG/internal/domain"
	"github.com/cloudrig/CloudRIG/internal/logging"
	"github.com/cloudrig/CloudRIG/internal/wiring"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cloudrig-lambda: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if cfg.Handler == "" {
		return fmt.Errorf("%w: handler is required", domain.ErrInvalidArgument)
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	rt, err := wiring.Build(context.Background(), cfg, wiring.Options{Logger: logger})
	if err != nil {
		return err
	}

	handler := application.Handler(cfg.Handler)
	logger.Info("starting lambda handler", "handler", handler, "deployment_id", cfg.DeploymentID)
	lambda.Start(func(ctx context.Context, raw json.RawMessage) (domain.Result, error) {
		return rt.Service.Handle(ctx, handler, raw)
	})
	return nil
}
