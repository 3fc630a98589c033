package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/wallet"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "wallet",
		Usage: "a cashu ecash wallet",
		Commands: []*cli.Command{
			balanceCmd,
			mintCmd,
			sendCmd,
			receiveCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var balanceCmd = &cli.Command{
	Name:  "balance",
	Usage: "show the wallet's current balance",
	Action: func(cCtx *cli.Context) error {
		nutw, err := wallet.LoadWallet()
		if err != nil {
			return err
		}
		fmt.Printf("balance: %d sats\n", nutw.GetBalance())
		return nil
	},
}

var mintCmd = &cli.Command{
	Name:      "mint",
	Usage:     "request a lightning invoice and mint tokens once it's paid",
	ArgsUsage: "<amount>",
	Action: func(cCtx *cli.Context) error {
		amount, err := parseAmountArg(cCtx)
		if err != nil {
			return err
		}

		nutw, err := wallet.LoadWallet()
		if err != nil {
			return err
		}

		mintQuote, err := nutw.RequestMint(amount)
		if err != nil {
			return fmt.Errorf("error requesting mint quote: %v", err)
		}
		fmt.Println("pay this invoice to mint tokens:")
		fmt.Println(mintQuote.Request)

		for !nutw.CheckQuotePaid(mintQuote.Quote) {
			time.Sleep(2 * time.Second)
		}

		keyset, err := wallet.GetMintCurrentKeyset(nutw.MintURL)
		if err != nil {
			return err
		}

		blindedMessages, secrets, rs, err := cashu.CreateBlindedMessages(amount, keyset.Id)
		if err != nil {
			return err
		}

		signatures, err := nutw.MintTokens(mintQuote.Quote, blindedMessages)
		if err != nil {
			return fmt.Errorf("error minting tokens: %v", err)
		}

		proofs, err := nutw.ConstructProofs(signatures, secrets, rs, keyset)
		if err != nil {
			return err
		}
		if err := nutw.StoreProofs(proofs); err != nil {
			return err
		}

		fmt.Printf("minted %d sats\n", amount)
		return nil
	},
}

var sendCmd = &cli.Command{
	Name:      "send",
	Usage:     "create a token for the given amount",
	ArgsUsage: "<amount>",
	Action: func(cCtx *cli.Context) error {
		amount, err := parseAmountArg(cCtx)
		if err != nil {
			return err
		}

		nutw, err := wallet.LoadWallet()
		if err != nil {
			return err
		}

		token, err := nutw.Send(amount)
		if err != nil {
			return fmt.Errorf("error creating token: %v", err)
		}

		serialized, err := token.Serialize()
		if err != nil {
			return err
		}
		fmt.Println(serialized)
		return nil
	},
}

var receiveCmd = &cli.Command{
	Name:      "receive",
	Usage:     "redeem a cashu token",
	ArgsUsage: "<token>",
	Action: func(cCtx *cli.Context) error {
		if cCtx.Args().Len() < 1 {
			return cli.Exit("token argument required", 1)
		}

		token, err := cashu.ParseToken(cCtx.Args().First())
		if err != nil {
			return fmt.Errorf("error parsing token: %v", err)
		}

		nutw, err := wallet.LoadWallet()
		if err != nil {
			return err
		}

		amount, err := nutw.Receive(token)
		if err != nil {
			return fmt.Errorf("error receiving token: %v", err)
		}

		fmt.Printf("received %d sats\n", amount)
		return nil
	},
}

func parseAmountArg(cCtx *cli.Context) (uint64, error) {
	if cCtx.Args().Len() < 1 {
		return 0, cli.Exit("amount argument required", 1)
	}
	var amount uint64
	if _, err := fmt.Sscanf(cCtx.Args().First(), "%d", &amount); err != nil {
		return 0, fmt.Errorf("invalid amount: %v", err)
	}
	return amount, nil
}
