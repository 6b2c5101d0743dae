package main

import (
	"context"

	"voltdock/config"
	"voltdock/di"
	"voltdock/shared/logger"
)

func main() {
	cfg := config.Get()

	logger.InitLogger()

	logger.SetLogLevel(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := di.InitializeSweeper()
	go sweeper.Run(ctx)

	http := di.InitializeService()
	http.Serve()
}
