package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/symphainy/trafficcop/cmd"
	"github.com/symphainy/trafficcop/internal/platform/otel"
)

func main() {
	shutdown, err := otel.Setup(context.Background(), "trafficcop")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracing disabled: %v\n", err)
	}

	code := 0
	if err := cmd.Execute(); err != nil {
		code = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = shutdown(ctx)
	cancel()

	os.Exit(code)
}
