package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/gateway"
	"github.com/blnkfinance/custody/internal/hooks"
	"github.com/blnkfinance/custody/internal/notification"
	redis_db "github.com/blnkfinance/custody/internal/redis-db"
)

// Custody represents the CLI application, encapsulating the root Cobra command.
type Custody struct {
	cmd *cobra.Command
}

// custodyInstance holds everything a command needs at runtime. Optional
// components stay nil when their backing service is not configured.
type custodyInstance struct {
	custodian *custody.Custodian
	cnf       *config.Configuration
	queue     *custody.Queue
	redis     *redis_db.Redis
	hooks     hooks.HookManager
	audit     database.IDataSource
}

func (app *custodyInstance) close() {
	if app.queue != nil {
		_ = app.queue.Close()
	}
	if app.redis != nil {
		_ = app.redis.Close()
	}
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the custodian before any command runs.
func preRun(app *custodyInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupCustody(app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		return nil
	}
}

func newGateway(cfg *config.Configuration) custody.AssetTransferGateway {
	if cfg.Gateway.Driver == "http" {
		return gateway.NewHTTP(cfg.Gateway)
	}
	g := gateway.NewMemory(custody.OptionsFromConfig(cfg).Account)
	if cfg.Gateway.Faucet {
		logrus.Warn("memory gateway faucet is enabled; deposits mint missing funds")
		g = g.WithFaucet()
	}
	return g
}

// setupCustody connects the optional audit store, queue and hook registry and
// creates the custodian with one event sink per connected backend.
func setupCustody(app *custodyInstance, cfg *config.Configuration) error {
	app.cnf = cfg
	var sinks []custody.EventSink

	if cfg.DataSource.Dns != "" {
		db, err := database.NewDataSource(cfg)
		if err != nil {
			return fmt.Errorf("error getting datasource: %v", err)
		}
		app.audit = db
		sinks = append(sinks, custody.AuditSink(db))
	}

	if cfg.Redis.Dns != "" {
		queue, err := custody.NewQueue(cfg)
		if err != nil {
			return fmt.Errorf("error creating queue: %v", err)
		}
		app.queue = queue

		client, err := redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return fmt.Errorf("error connecting to redis: %v", err)
		}
		app.redis = client
		app.hooks = hooks.NewHookManager(client.Client(), queue.Client, cfg.Queue.HookQueue)
		sinks = append(sinks, custody.HookSink(app.hooks))

		if cfg.Notification.Webhook.Url != "" {
			sinks = append(sinks, custody.WebhookSink(queue))
		}
	}

	c, err := custody.NewCustodian(newGateway(cfg), custody.OptionsFromConfig(cfg), sinks...)
	if err != nil {
		return fmt.Errorf("error creating custodian: %v", err)
	}
	app.custodian = c
	return nil
}

// NewCLI creates the command-line interface with the server, workers and migrate commands.
func NewCLI() *Custody {
	var configFile string
	app := &custodyInstance{}

	var rootCmd = &cobra.Command{
		Use:   "custody",
		Short: "Custodial token ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./custody.json", "Configuration file for the custody server")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Custody{cmd: rootCmd}
}

func (w Custody) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
