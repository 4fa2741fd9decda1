package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itchyny/gojq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/peerramp/peerramp/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to settlement events for a wallet.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to settlement events for a wallet",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to real-time settlement events published to NATS JetStream.

This command connects to NATS and streams settlement lifecycle events for the
specified wallet address. Events are published to the subject:
settlements.{wallet_address}

Example:
  peerramp nats subscribe 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B --json
  peerramp nats subscribe 0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B \
    --must-jq '.event_type == "settlement_succeeded"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "peerramp-cli",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Aliases: []string{"jq"},
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			natsURL := c.String("nats-url")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			return streamSettlementEvents(address, natsURL, durable, consumerName, jsonOutput, filters)
		},
	}
}

// streamSettlementEvents connects to NATS and streams settlement events.
func streamSettlementEvents(address, natsURL string, durable bool, consumerName string, jsonOutput bool, filters []*gojq.Code) error {
	// Connect to NATS
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subject := fmt.Sprintf("settlements.%s", address)

	if !jsonOutput {
		fmt.Printf("📡 Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for settlement events... (Ctrl-C to exit)\n\n")
	}

	// Create consumer config
	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	// Create or update consumer
	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Receive messages
	msgChan := make(chan jetstream.Msg, 10)

	// Start consuming in background
	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.SettlementEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			if !eventMatchesFilters(filters, msg.Data()) {
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				// Output raw JSON
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				// Human-friendly output
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Settlement Event #%d\n", count)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Event Type:     %s\n", event.EventType)
				fmt.Printf("Correlation ID: %s\n", event.CorrelationID)
				fmt.Printf("Wallet:         %s\n", event.WalletAddress)
				fmt.Printf("On-Ramp:        %s\n", event.OnRampAddress)
				fmt.Printf("Off-Ramp:       %s\n", event.OffRampAddress)
				fmt.Printf("Amount:         %.2f USD\n", event.Amount)
				if event.TxHash != "" {
					fmt.Printf("Tx Hash:        %s\n", event.TxHash)
				}
				if event.Reason != "" {
					fmt.Printf("Reason:         %s\n", event.Reason)
				}
				fmt.Printf("Published:      %s\n", event.PublishedAt.Format(time.RFC3339))
				fmt.Printf("\n")
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\n\n✅ Received %d settlement event(s)\n", count)
				fmt.Println("Shutting down...")
			}
			return nil
		}
	}
}

// compileJQFilters parses and compiles the --must-jq filter expressions.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// eventMatchesFilters reports whether the raw event JSON satisfies every
// compiled jq filter. An event with no filters always matches.
func eventMatchesFilters(filters []*gojq.Code, raw []byte) bool {
	if len(filters) == 0 {
		return true
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			// No result means filter failed
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}

	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the SETTLEMENTS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  peerramp nats inspect-stream`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			jsonOutput := c.Bool("json")

			// Connect to NATS
			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			// Get stream info
			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Println(string(data))
			} else {
				fmt.Printf("Stream: %s\n", info.Config.Name)
				fmt.Printf("─────────────────────────────────────────────────────\n")
				fmt.Printf("Description:  %s\n", info.Config.Description)
				fmt.Printf("Subjects:     %v\n", info.Config.Subjects)
				fmt.Printf("Messages:     %d\n", info.State.Msgs)
				fmt.Printf("Bytes:        %d\n", info.State.Bytes)
				fmt.Printf("First Seq:    %d\n", info.State.FirstSeq)
				fmt.Printf("Last Seq:     %d\n", info.State.LastSeq)
				fmt.Printf("Consumers:    %d\n", info.State.Consumers)
				fmt.Printf("Max Age:      %s\n", info.Config.MaxAge)
				fmt.Printf("Storage:      %s\n", info.Config.Storage)
				fmt.Printf("\n")
			}

			return nil
		},
	}
}
