package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/calsync/internal/client/cli"
	"github.com/dmitrijs2005/calsync/internal/client/config"
	"github.com/dmitrijs2005/calsync/internal/flagx"
)

func main() {

	args := os.Args[1:]

	cfg, err := config.Load(args)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cmd := flagx.Positional(args, []string{"-a", "-r", "-w", "-c", "-config", "--config"})
	if err := app.Run(context.Background(), cmd); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

}
