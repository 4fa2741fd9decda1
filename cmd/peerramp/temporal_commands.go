package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	temporalpkg "github.com/peerramp/peerramp/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			iter, err := temporalClient.ScheduleClient().List(ctx, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID")
			count := 0
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				fmt.Fprintf(w, "%s\n", schedule.ID)
				count++
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d schedules\n", count)
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			// Pretty output
			fmt.Printf("Schedule ID:    %s\n", scheduleID)
			fmt.Printf("State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Printf("Paused:         %v\n", desc.Schedule.State.Paused)

			if action := desc.Schedule.Action; action != nil {
				if wa, ok := action.(*client.ScheduleWorkflowAction); ok {
					fmt.Printf("\nWorkflow:\n")
					fmt.Printf("  Workflow:     %s\n", wa.Workflow)
					fmt.Printf("  Task Queue:   %s\n", wa.TaskQueue)
					fmt.Printf("  Args:         %v\n", wa.Args)
				}
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Printf("\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Printf("  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Printf("\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if len(desc.Info.RecentActions) > 0 {
				lastAction := desc.Info.RecentActions[len(desc.Info.RecentActions)-1]
				fmt.Printf("Last Action:  %s\n", lastAction.ActualTime.Format(time.RFC3339))
			}

			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via peerramp CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Pause(ctx, client.SchedulePauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Printf("✓ Schedule paused: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via peerramp CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Unpause(ctx, client.ScheduleUnpauseOptions{
				Note: note,
			})
			if err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Printf("✓ Schedule resumed: %s\n", scheduleID)
			if note != "" {
				fmt.Printf("  Note: %s\n", note)
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule (use for orphaned schedules)",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			// Confirm deletion unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to delete schedule %s? (yes/no): ", scheduleID)
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			err = handle.Delete(ctx)
			if err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Printf("✓ Schedule deleted: %s\n", scheduleID)
			return nil
		},
	}
}

func describeSettlementCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-settlement",
		Usage:     "Query the current stage of a settlement workflow",
		Aliases:   []string{"settlement"},
		ArgsUsage: "<correlation-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: correlation ID")
			}

			correlationID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			workflowID := "settle-" + correlationID
			resp, err := temporalClient.QueryWorkflow(ctx, workflowID, "", temporalpkg.SettlementStatusQueryName)
			if err != nil {
				return fmt.Errorf("failed to query settlement %s: %w", correlationID, err)
			}

			var snapshot temporalpkg.SettlementStatusSnapshot
			if err := resp.Get(&snapshot); err != nil {
				return fmt.Errorf("failed to decode settlement status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(snapshot)
			}

			// Pretty output
			fmt.Printf("Correlation ID: %s\n", correlationID)
			fmt.Printf("Workflow ID:    %s\n", workflowID)
			fmt.Printf("Stage:          %s\n", snapshot.Stage)
			if snapshot.CheckoutURL != "" {
				fmt.Printf("Checkout URL:   %s\n", snapshot.CheckoutURL)
			}
			if snapshot.TxHash != "" {
				fmt.Printf("Tx Hash:        %s\n", snapshot.TxHash)
			}
			if snapshot.Error != "" {
				fmt.Printf("Error:          %s\n", snapshot.Error)
			}

			return nil
		},
	}
}

func cancelSettlementCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel-settlement",
		Usage:     "Cancel a running settlement workflow",
		ArgsUsage: "<correlation-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: correlation ID")
			}

			correlationID := c.Args().First()

			// Confirm cancellation unless --force
			if !c.Bool("force") {
				fmt.Printf("Are you sure you want to cancel settlement %s? (yes/no): ", correlationID)
				var response string
				fmt.Scanln(&response)
				if response != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			workflowID := "settle-" + correlationID
			if err := temporalClient.CancelWorkflow(ctx, workflowID, ""); err != nil {
				return fmt.Errorf("failed to cancel settlement: %w", err)
			}

			fmt.Printf("✓ Settlement cancelled: %s\n", correlationID)
			return nil
		},
	}
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (client.Client, error) {
	// Try to get from parent context first (for global flags)
	host := c.String("temporal-host")
	if host == "" && c.App != nil {
		// Try environment variable directly if flag not found
		host = os.Getenv("TEMPORAL_HOST")
	}
	if host == "" {
		host = "localhost:7233" // Default value
	}

	namespace := c.String("temporal-namespace")
	if namespace == "" && c.App != nil {
		// Try environment variable directly if flag not found
		namespace = os.Getenv("TEMPORAL_NAMESPACE")
	}
	if namespace == "" {
		namespace = "default" // Default value
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	return temporalClient, nil
}
