package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gonuts-mint/gonuts/mint"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "mint",
		Usage: "run a gonuts cashu mint",
		Action: func(cCtx *cli.Context) error {
			return runMint()
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runMint() error {
	config, err := mint.GetConfig()
	if err != nil {
		return fmt.Errorf("error reading mint config: %v", err)
	}

	mintServer, err := mint.SetupMintServer(config)
	if err != nil {
		return fmt.Errorf("error setting up mint: %v", err)
	}

	mint.StartMintServer(mintServer)
	return nil
}
