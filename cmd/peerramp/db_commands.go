package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/peerramp/peerramp/service/db"
	"github.com/urfave/cli/v2"
)

func listReservationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-reservations",
		Usage:   "List off-ramp addresses with a live reservation",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			addresses, err := store.ListLiveReservedAddresses(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list reservations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(addresses)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OFF-RAMP ADDRESS")
			for _, addr := range addresses {
				fmt.Fprintf(w, "%s\n", addr)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d live reservations\n", len(addresses))
			return nil
		},
	}
}

func getReservationCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-reservation",
		Usage:     "Get the reservation held by a settlement attempt",
		Aliases:   []string{"get"},
		ArgsUsage: "<correlation-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: correlation ID")
			}

			correlationID := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			reservation, err := store.GetReservation(context.Background(), correlationID)
			if err != nil {
				return fmt.Errorf("failed to get reservation: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(reservation)
			}

			// Pretty output
			fmt.Printf("Correlation ID:   %s\n", reservation.CorrelationID)
			fmt.Printf("Off-Ramp Address: %s\n", reservation.OffRampAddress)
			fmt.Printf("Reserved By:      %s\n", reservation.ReservedBy)
			if reservation.SettlementTx != nil {
				fmt.Printf("Settlement Tx:    %s\n", *reservation.SettlementTx)
			} else {
				fmt.Printf("Settlement Tx:    (not submitted)\n")
			}
			fmt.Printf("Reserved At:      %s\n", reservation.ReservedAt.Format(time.RFC3339))
			fmt.Printf("Expires At:       %s\n", reservation.ExpiresAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List settlement transaction records",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "wallet",
				Aliases: []string{"w"},
				Usage:   "Wallet address to list transactions for (required)",
			},
			&cli.BoolFlag{
				Name:    "pending",
				Aliases: []string{"p"},
				Usage:   "Only show transactions still awaiting confirmation",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of transactions to skip",
			},
		},
		Action: func(c *cli.Context) error {
			walletAddr := c.String("wallet")
			if walletAddr == "" {
				return fmt.Errorf("please specify --wallet flag to list transactions")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var transactions []*db.TransactionRecord
			if c.Bool("pending") {
				transactions, err = store.ListPendingTransactions(context.Background(), walletAddr)
			} else {
				transactions, err = store.ListTransactionsByWallet(
					context.Background(), walletAddr, int32(c.Int("limit")), int32(c.Int("offset")))
			}
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(transactions)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX HASH\tTYPE\tSTATUS\tCREATED\tUPDATED")
			for _, tx := range transactions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					tx.TxHash,
					tx.Type,
					tx.Status,
					tx.CreatedAt.Format(time.RFC3339),
					tx.UpdatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(transactions))
			return nil
		},
	}
}

func sweepReservationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep-reservations",
		Usage: "Delete expired reservations immediately (normally handled by the sweep schedule)",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			swept, err := store.SweepExpiredReservations(context.Background())
			if err != nil {
				return fmt.Errorf("failed to sweep reservations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(map[string]int64{"swept": swept})
			}

			fmt.Printf("✓ Swept %d expired reservation(s)\n", swept)
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	// Try to get from parent context first (for global flags)
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
