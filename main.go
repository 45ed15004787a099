package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"roadside/internal/request/bootstrap"
	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"
)

func main() {
	svc := flag.String("service", "dispatch", "dispatch")
	flag.Parse()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() { <-quit; cancel() }()

	switch *svc {
	case "dispatch":
		log := logger.NewLogger("dispatch-service")
		defer log.Close()
		bootstrap.Run(ctx, cfg, log)

	default:
		log := logger.NewLogger("bootstrap")
		log.Fatal(logger.Entry{Action: "invalid_service", Message: *svc})
	}
}
