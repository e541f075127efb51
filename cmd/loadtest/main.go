// Command loadtest drives full equipment lifecycles against a running
// certification server: identity setup, equipment registration, reverse
// auction, accreditation, certification and a follow-up audit.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/certeq/equipment-certification-backend/client"
	"github.com/certeq/equipment-certification-backend/common"
	"github.com/certeq/equipment-certification-backend/interfaces"
)

func main() {
	app := &cli.App{
		Name:  "certification-loadtest",
		Usage: "Run concurrent equipment certification lifecycles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server",
				Value: "http://127.0.0.1:8080",
				Usage: "base URL of the certification API",
			},
			&cli.StringFlag{
				Name:     "registrar-key",
				Usage:    "hex private key of the registrar",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "certifier-key",
				Usage:    "hex private key of the certifier",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "lifecycles",
				Value: 10,
				Usage: "number of concurrent equipment lifecycles",
			},
			&cli.IntFlag{
				Name:  "cabs",
				Value: 3,
				Usage: "number of CABs bidding on each auction",
			},
			&cli.BoolFlag{
				Name:  "log-debug",
				Value: false,
				Usage: "log debug messages",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool("log-debug"),
		Service: "certification-loadtest",
		Version: common.Version,
	})

	serverURL := cCtx.String("server")
	lifecycles := cCtx.Int("lifecycles")
	cabCount := cCtx.Int("cabs")

	registrarKey, err := crypto.HexToECDSA(cCtx.String("registrar-key"))
	if err != nil {
		return fmt.Errorf("invalid registrar key: %w", err)
	}
	certifierKey, err := crypto.HexToECDSA(cCtx.String("certifier-key"))
	if err != nil {
		return fmt.Errorf("invalid certifier key: %w", err)
	}

	registrar := client.New(serverURL, registrarKey)
	certifier := client.New(serverURL, certifierKey)
	ctx := cCtx.Context

	// One shared pool of CABs bids across every lifecycle.
	cabs := make([]*client.Client, cabCount)
	for i := range cabs {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		cabs[i] = client.New(serverURL, key)

		name := fmt.Sprintf("cab-%d", i+1)
		if err := registrar.RegisterCAB(ctx, name, cabs[i].Principal()); err != nil {
			return fmt.Errorf("registering %s: %w", name, err)
		}
		if err := registrar.AccreditCAB(ctx, cabs[i].Principal(), true); err != nil {
			return fmt.Errorf("accrediting %s: %w", name, err)
		}
	}
	logger.Info("CABs registered and accredited", "count", cabCount)

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < lifecycles; i++ {
		g.Go(func() error {
			return runLifecycle(ctx, logger, serverURL, registrar, certifier, cabs)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("All lifecycles completed",
		"lifecycles", lifecycles,
		"elapsed", time.Since(start).String())
	return nil
}

// runLifecycle walks one equipment item through the complete workflow with a
// fresh manufacturer identity.
func runLifecycle(ctx context.Context, logger *slog.Logger, serverURL string, registrar, certifier *client.Client, cabs []*client.Client) error {
	manufacturerKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	manufacturer := client.New(serverURL, manufacturerKey)

	if err := registrar.RegisterManufacturer(ctx, manufacturer.Principal()); err != nil {
		return fmt.Errorf("registering manufacturer: %w", err)
	}

	equipmentID, err := manufacturer.RegisterEquipment(ctx, interfaces.KindA, fakeDocHash())
	if err != nil {
		return fmt.Errorf("registering equipment: %w", err)
	}

	auctionID, err := manufacturer.CreateAuction(ctx, equipmentID)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}

	for _, cab := range cabs {
		amount := interfaces.Currency(100 + rand.Intn(900))
		if _, err := cab.SubmitBid(ctx, auctionID, amount); err != nil {
			return fmt.Errorf("submitting bid: %w", err)
		}
	}

	best, err := manufacturer.AuctionDetails(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("reading auction: %w", err)
	}
	lowest := best.Bids[0].Amount
	for _, b := range best.Bids {
		if b.Amount < lowest {
			lowest = b.Amount
		}
	}
	if _, err := manufacturer.SelectBestBid(ctx, auctionID, lowest); err != nil {
		return fmt.Errorf("selecting best bid: %w", err)
	}

	winner, err := manufacturer.WinningCAB(ctx, equipmentID)
	if err != nil {
		return fmt.Errorf("reading winner: %w", err)
	}
	winnerClient := clientFor(cabs, winner)
	if winnerClient == nil {
		return fmt.Errorf("winning CAB %s not in local pool", winner.String())
	}

	if err := winnerClient.SubmitTestResults(ctx, equipmentID, fakeDocHash()); err != nil {
		return fmt.Errorf("submitting test results: %w", err)
	}
	if err := registrar.MakeAccreditationDecision(ctx, equipmentID, interfaces.DecisionApprove); err != nil {
		return fmt.Errorf("accreditation decision: %w", err)
	}

	if err := manufacturer.RequestCertification(ctx, equipmentID, winner, fakeDocHash()); err != nil {
		return fmt.Errorf("requesting certification: %w", err)
	}
	if err := certifier.MakeCertificationDecision(ctx, equipmentID, interfaces.DecisionApprove); err != nil {
		return fmt.Errorf("certification decision: %w", err)
	}

	if err := winnerClient.SubmitAuditReport(ctx, equipmentID, fakeDocHash()); err != nil {
		return fmt.Errorf("submitting audit report: %w", err)
	}

	logger.Info("Lifecycle completed", "equipment", equipmentID, "auction", auctionID, "winner", winner.String())
	return nil
}

func clientFor(cabs []*client.Client, addr interfaces.Principal) *client.Client {
	for _, cab := range cabs {
		if cab.Principal() == addr {
			return cab
		}
	}
	return nil
}

// fakeDocHash produces a plausible content identifier without a storage
// backend in the loop.
func fakeDocHash() interfaces.ContentHash {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	buf := make([]byte, 44)
	for i := range buf {
		buf[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return interfaces.ContentHash("Qm" + string(buf))
}
