package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/entrance-ticketing/internal/config"
	"github.com/iliyamo/entrance-ticketing/internal/events"
)

var workerNoScheduler bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume tickets.issued into the staff log and run scheduled sweeps",
	RunE:  runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerNoScheduler, "no-scheduler", false, "only run the tickets.issued consumer")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if !workerNoScheduler {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.scheduler().Run(ctx)
		}()
	}

	broker := config.LoadBroker()
	consumer := events.Consumer{URL: broker.URL, LogDir: broker.LogDir}
	err := consumer.Run(ctx)
	stop()
	wg.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Printf("worker: stopped")
	return nil
}
