package main

import (
	"context"
	"fmt"
	"os"

	"github.com/OscarCaraballo97/inferno-payment/internal/app"
)

func main() {
	ctx := context.Background()

	worker, err := app.NewWorker(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start stage worker: %v\n", err)
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stage worker exited: %v\n", err)
		os.Exit(1)
	}
}
