package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"rivwidthcloud/internal/cmd"
)

func main() {
	// Прерывание останавливает выдачу новых задач, начатые отправки завершаются
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
