// Command console is the operator side of vesselwatch. "watch" follows the
// live channel and raises violation alerts in the terminal; "simulate"
// sails a scripted voyage against the position API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "watch":
		err = runWatch(ctx, os.Args[2:])
	case "simulate":
		err = runSimulate(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil && ctx.Err() == nil {
		logrus.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: console <watch|simulate> [flags]")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
