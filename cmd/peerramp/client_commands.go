package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/peerramp/peerramp/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the peerramp service",
		Subcommands: []*cli.Command{
			onRampCommand(),
			awaitSettlementCommand(),
			offRampCommand(),
			registerCommand(),
			registrationStatusCommand(),
			transactionsCommand(),
		},
	}
}

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "HTTP server URL",
		EnvVars: []string{"PEERRAMP_SERVER_URL"},
	}
}

func clientLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func onRampCommand() *cli.Command {
	return &cli.Command{
		Name:      "onramp",
		Usage:     "Start an on-ramp settlement attempt",
		ArgsUsage: "WALLET_ADDRESS AMOUNT_USD",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "await",
				Aliases: []string{"a"},
				Usage:   "Block until the settlement reaches a terminal stage",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "How long to wait when --await is set",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("wallet address and amount are required")
			}

			address := c.Args().Get(0)
			amount, err := strconv.ParseFloat(c.Args().Get(1), 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", c.Args().Get(1), err)
			}

			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, clientLogger())

			onramp, err := cl.StartOnRamp(context.Background(), address, amount)
			if err != nil {
				return fmt.Errorf("failed to start on-ramp: %w", err)
			}

			if !jsonOutput {
				fmt.Printf("✓ On-ramp started\n")
				fmt.Printf("  Correlation ID: %s\n", onramp.CorrelationID)
				if onramp.CheckoutURL != "" {
					fmt.Printf("  Checkout URL:   %s\n", onramp.CheckoutURL)
				} else {
					fmt.Printf("  Checkout URL:   (pending, poll with: peerramp client await %s)\n", onramp.CorrelationID)
				}
			}

			if c.Bool("await") {
				ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
				defer cancel()

				onramp, err = cl.AwaitSettlement(ctx, onramp.CorrelationID, 0)
				if err != nil {
					return fmt.Errorf("failed to await settlement: %w", err)
				}
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(onramp, "", "  ")
				fmt.Println(string(data))
			} else if c.Bool("await") {
				printOnRampDetailed(onramp)
			}

			return nil
		},
	}
}

func awaitSettlementCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a settlement reaches a terminal stage",
		ArgsUsage: "CORRELATION_ID",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.DurationFlag{
				Name:    "poll-interval",
				Aliases: []string{"i"},
				Value:   5 * time.Second,
				Usage:   "How often to poll settlement status",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "How long to wait for a terminal stage",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("correlation ID is required")
			}

			correlationID := c.Args().Get(0)
			serverURL := c.String("server")
			timeout := c.Duration("timeout")
			jsonOutput := c.Bool("json")

			// Create HTTP client with appropriate timeout
			httpClient := &http.Client{
				Timeout: 30 * time.Second,
			}

			cl := client.NewClient(serverURL, httpClient, clientLogger())

			// Print waiting message
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Waiting for settlement %s...\n", correlationID)
				fmt.Fprintf(os.Stderr, "  Timeout: %v\n\n", timeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			onramp, err := cl.AwaitSettlement(ctx, correlationID, c.Duration("poll-interval"))
			if err != nil {
				return fmt.Errorf("failed to await settlement: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(onramp, "", "  ")
				fmt.Println(string(data))
			} else {
				printOnRampDetailed(onramp)
			}

			return nil
		},
	}
}

func offRampCommand() *cli.Command {
	return &cli.Command{
		Name:      "offramp",
		Usage:     "Create an off-ramp intent on the ledger gateway",
		ArgsUsage: "WALLET_ADDRESS AMOUNT_WEI",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("wallet address and amount (wei) are required")
			}

			address := c.Args().Get(0)
			amountWei := c.Args().Get(1)
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, clientLogger())

			txn, err := cl.CreateOffRampIntent(context.Background(), address, amountWei)
			if err != nil {
				return fmt.Errorf("failed to create off-ramp intent: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(txn, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Off-ramp intent created\n")
				fmt.Printf("  Wallet:  %s\n", txn.WalletAddress)
				fmt.Printf("  Tx Hash: %s\n", txn.TxHash)
				fmt.Printf("  Status:  %s\n", txn.Status)
			}

			return nil
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Usage:     "Register a wallet with the payment processor",
		ArgsUsage: "WALLET_ADDRESS EMAIL",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("wallet address and email are required")
			}

			address := c.Args().Get(0)
			email := c.Args().Get(1)
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, clientLogger())

			if err := cl.Register(context.Background(), address, email); err != nil {
				return fmt.Errorf("failed to register wallet: %w", err)
			}

			if jsonOutput {
				data, _ := json.Marshal(map[string]interface{}{
					"wallet_address": address,
					"email":          email,
					"status":         "pending",
				})
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Registration submitted\n")
				fmt.Printf("  Wallet: %s\n", address)
				fmt.Printf("  Email:  %s\n", email)
				fmt.Printf("  Status: pending (check with: peerramp client status %s)\n", address)
			}

			return nil
		},
	}
}

func registrationStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Get registration status for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			cl := client.NewClient(serverURL, nil, clientLogger())

			reg, err := cl.RegistrationStatus(context.Background(), address)
			if err != nil {
				return fmt.Errorf("failed to get registration status: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(reg, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Wallet: %s\n", reg.WalletAddress)
				fmt.Printf("Status: %s\n", reg.Status)
				if reg.Email != "" {
					fmt.Printf("Email:  %s\n", reg.Email)
				}
				if reg.UpdatedAt != nil {
					fmt.Printf("Updated: %s\n", reg.UpdatedAt.Format(time.RFC3339))
				}
			}

			return nil
		},
	}
}

func transactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "transactions",
		Aliases:   []string{"txns", "tx"},
		Usage:     "List settlement transaction records for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "pending",
				Aliases: []string{"p"},
				Usage:   "Only show transactions still awaiting confirmation",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			serverURL := c.String("server")
			jsonOutput := c.Bool("json")

			status := ""
			if c.Bool("pending") {
				status = "pending"
			}

			cl := client.NewClient(serverURL, nil, clientLogger())

			transactions, err := cl.ListTransactions(context.Background(), address, status)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(transactions, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(transactions) == 0 {
				fmt.Println("No transactions found")
				return nil
			}

			fmt.Printf("Found %d transaction(s) for wallet %s:\n\n", len(transactions), address)
			for i, txn := range transactions {
				fmt.Printf("[%d] Tx Hash: %s\n", i+1, txn.TxHash)
				fmt.Printf("    Type:    %s\n", txn.Type)
				fmt.Printf("    Status:  %s\n", txn.Status)
				fmt.Printf("    Created: %s\n", txn.CreatedAt.Format(time.RFC3339))
				fmt.Printf("    Updated: %s\n", txn.UpdatedAt.Format(time.RFC3339))
				fmt.Println()
			}

			return nil
		},
	}
}

func printOnRampDetailed(onramp *client.OnRamp) {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if onramp.Stage == client.StageCompleted {
		fmt.Println("✓ Settlement Completed")
	} else {
		fmt.Println("✗ Settlement Failed")
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Correlation ID: %s\n", onramp.CorrelationID)
	fmt.Printf("Stage:          %s\n", onramp.Stage)

	if onramp.TxHash != "" {
		fmt.Printf("Tx Hash:        %s\n", onramp.TxHash)
	}
	if onramp.CheckoutURL != "" {
		fmt.Printf("Checkout URL:   %s\n", onramp.CheckoutURL)
	}
	if onramp.Error != "" {
		fmt.Printf("Error:          %s\n", onramp.Error)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}
