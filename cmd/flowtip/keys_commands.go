package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func keysCommands() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Keypair utilities",
		Subcommands: []*cli.Command{
			{
				Name:  "new",
				Usage: "Generate a new keypair",
				Action: func(c *cli.Context) error {
					key := solana.NewWallet().PrivateKey
					if wantJSON(c) {
						return outputJSON(c, map[string]string{
							"public_key": key.PublicKey().String(),
							"secret_key": key.String(),
						})
					}
					fmt.Printf("Public Key: %s\n", key.PublicKey())
					fmt.Printf("Secret Key: %s\n", key)
					return nil
				},
			},
			{
				Name:      "pubkey",
				Usage:     "Print the public key of a keypair",
				ArgsUsage: "KEYPAIR",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return fmt.Errorf("requires exactly one argument: keypair file or base58 secret")
					}
					key, err := loadKeypair(c.Args().First())
					if err != nil {
						return err
					}
					if wantJSON(c) {
						return outputJSON(c, map[string]string{"public_key": key.PublicKey().String()})
					}
					fmt.Println(key.PublicKey())
					return nil
				},
			},
		},
	}
}
