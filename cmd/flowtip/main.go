package main

import (
	"fmt"
	"log"
	"os"

	"github.com/brojonat/flowtip/service/config"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "flowtip",
		Usage: "Gasless creator tipping relay CLI",
		Description: `A command-line tool for tipping creators through the FlowTip relay
and for operating the relay itself.

Tips are built by the relay, co-signed locally with the sender's key and
submitted directly to the network. Operator commands inspect the tip
ledger, the confirmation workflows and the event stream.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			keysCommands(),
			profileCommands(),
			tipCommands(),
			txCommands(),
			airdropCommand(),
			// Ledger inspection commands
			{
				Name:  "db",
				Usage: "Tip ledger inspection commands",
				Subcommands: []*cli.Command{
					listTipsCommand(),
					tipStatsCommand(),
					pendingTipsCommand(),
				},
			},
			// Confirmation workflow commands
			{
				Name:  "temporal",
				Usage: "Confirmation workflow commands",
				Subcommands: []*cli.Command{
					watchStatusCommand(),
					startWatchCommand(),
					resumeCommand(),
				},
			},
			// NATS tip event commands
			{
				Name:  "nats",
				Usage: "NATS tip event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			sseCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Aliases: []string{"s"},
				Usage:   "Relay server URL",
				EnvVars: []string{"FLOWTIP_SERVER_URL", "SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.devnet.solana.com",
			},
			&cli.StringFlag{
				Name:    "program-id",
				Usage:   "Creator profile program ID",
				EnvVars: []string{"FLOWTIP_PROGRAM_ID"},
				Value:   config.DefaultProgramID,
			},
			&cli.StringFlag{
				Name:    "mint",
				Usage:   "Token mint address",
				EnvVars: []string{"TOKEN_MINT_ADDRESS"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "temporal-task-queue",
				Usage:   "Temporal task queue",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "flowtip-confirmations",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq expression applied to JSON output (implies --json)",
			},
		},
	}
}
