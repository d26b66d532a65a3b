package main

import (
	"context"
	"log"
	"os"

	"github.com/mkravchenko/authd/internal/authctl"
	"github.com/mkravchenko/authd/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := authctl.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
	}

	err = app.Run(ctx, os.Args[1:])
	app.Close()

	if err != nil {
		log.Fatalf("%v", err)
	}

}
