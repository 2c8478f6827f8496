package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/mcelebi/qrtransfer/internal/config"
	"github.com/mcelebi/qrtransfer/internal/handler"
	"github.com/mcelebi/qrtransfer/internal/logger"
	"github.com/mcelebi/qrtransfer/internal/mailtask"
	"github.com/mcelebi/qrtransfer/internal/orders"
	"github.com/mcelebi/qrtransfer/internal/scraper"
	"github.com/mcelebi/qrtransfer/internal/service"
	"github.com/mcelebi/qrtransfer/internal/service/completedclient"
	"github.com/mcelebi/qrtransfer/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.GetConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}

	store, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}

	orders := orders.NewOrders(store, zaplog)
	service := service.NewService(cfg.Service, store, orders, zaplog)

	completed := completedclient.New(cfg.Mailtask.CompletedAddr)
	task := mailtask.NewTask(cfg.Mailtask, cfg.Mailbox, scraper.DefaultRegistry(), completed, zaplog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go task.Run(ctx)

	return handler.Serve(cfg.Handler, service, zaplog)
}
