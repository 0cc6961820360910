package main

import (
	"context"
	"fmt"
	"os"

	"github.com/OscarCaraballo97/inferno-payment/internal/app"
)

func main() {
	ctx := context.Background()

	api, err := app.NewAPI(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start payment api: %v\n", err)
		os.Exit(1)
	}

	if err := api.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "payment api exited: %v\n", err)
		os.Exit(1)
	}
}
