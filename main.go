package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/illarion/tokenlock/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		cmd.HandleError(err)
	}
}
