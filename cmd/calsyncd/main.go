package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/calsync/internal/config"
	"github.com/dmitrijs2005/calsync/internal/server"
)

func main() {

	ctx := context.Background()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
