package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"roadside/internal/request/bootstrap"
	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLoggerWithOptions("dispatch-service", os.Getenv("LOG_LEVEL"), os.Getenv("LOG_DIR"))
	if err != nil {
		logger.NewLogger("dispatch-service").Fatal(logger.Entry{
			Action:  "logger_init_failed",
			Message: err.Error(),
			Error:   &logger.ErrObj{Msg: err.Error()},
		})
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootstrap.Run(ctx, cfg, log)
}
