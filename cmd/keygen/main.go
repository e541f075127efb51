package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

func main() {
	app := &cli.App{
		Name:  "certification-keygen",
		Usage: "Generate a secp256k1 keypair for use as an API principal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Value: "",
				Usage: "write the private key hex to this file instead of stdout",
			},
		},
		Action: func(cCtx *cli.Context) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}

			privHex := hex.EncodeToString(crypto.FromECDSA(key))
			addr := interfaces.PrincipalFromAddress(crypto.PubkeyToAddress(key.PublicKey))

			if out := cCtx.String("out"); out != "" {
				if err := os.WriteFile(out, []byte(privHex+"\n"), 0o600); err != nil {
					return err
				}
				fmt.Printf("address: %s\nprivate key written to %s\n", addr.String(), out)
				return nil
			}

			fmt.Printf("address:     %s\nprivate key: %s\n", addr.String(), privHex)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
