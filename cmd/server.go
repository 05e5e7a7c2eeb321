/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/api"
	"github.com/blnkfinance/custody/config"
	"github.com/blnkfinance/custody/internal/lock"
	"github.com/blnkfinance/custody/internal/notification"
	trace "github.com/blnkfinance/custody/internal/traces"
	"github.com/blnkfinance/custody/model"
)

const leaseTTL = 30 * time.Second

/*
serveTLS starts an HTTPS server with TLS enabled using CertMagic for automatic certificate management.
If no domain is specified, the server will default to running on localhost.
*/
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if conf.Domain == "" {
		log.Println("No domain specified, defaulting to localhost")
		domains = []string{"localhost"}
	}

	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start HTTPS server: %v", err)
	}

	return nil
}

func initializeRouter(app *custodyInstance) (*gin.Engine, error) {
	a := api.NewAPI(app.custodian, app.hooks, app.audit)
	if a == nil {
		return nil, fmt.Errorf("could not create api: config not loaded")
	}
	return a.Router(), nil
}

func initializeTracing(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	shutdown, err := trace.SetupOTelSDK(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	return initializeTracing(ctx, cfg.ProjectName)
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// acquireLease makes this process the only writer for the custody account.
// It returns a no-op release when Redis is not configured.
func acquireLease(ctx context.Context, app *custodyInstance) (func(), error) {
	if app.redis == nil {
		logrus.Warn("redis is not configured; running without a single-writer lease")
		return func() {}, nil
	}

	key := fmt.Sprintf("custody:lease:%s", app.custodian.Options().Account)
	lease := lock.NewLease(app.redis.Client(), key, uuid.NewString(), leaseTTL)
	if err := lease.WaitAcquire(ctx, leaseTTL); err != nil {
		return nil, err
	}

	keepCtx, cancel := context.WithCancel(ctx)
	go lease.Keep(keepCtx, func(err error) {
		notification.NotifyError(err)
		log.Fatalf("custody lease lost: %v", err)
	})
	return func() {
		cancel()
		if err := lease.Release(context.Background()); err != nil {
			logrus.WithError(err).Warn("releasing custody lease")
		}
	}, nil
}

// checkAuditStore refuses a store that already holds events. Custody state
// lives in memory, so a restarted custodian would reuse sequence numbers.
func checkAuditStore(ctx context.Context, app *custodyInstance) error {
	if app.audit == nil {
		return nil
	}
	last, err := app.audit.LastSequence(ctx)
	if err != nil {
		return fmt.Errorf("reading audit store: %v", err)
	}
	if last > app.custodian.LastSequence() {
		return fmt.Errorf("audit store already holds events up to sequence %d; reset it with migrate down and up before starting a new custodian", last)
	}
	return nil
}

// runBatchTicker advances the withdrawal batch on a fixed interval as the
// configured operator. Empty windows are skipped.
func runBatchTicker(ctx context.Context, c *custody.Custodian, cfg config.CustodyConfig) {
	if cfg.BatchOperator == "" || cfg.BatchIntervalSec <= 0 || c.Mode() != custody.ApprovalBatch {
		return
	}

	operator := model.Holder(cfg.BatchOperator)
	ticker := time.NewTicker(time.Duration(cfg.BatchIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Window().Empty() {
				continue
			}
			result, err := c.AdvanceBatch(ctx, operator)
			if err != nil {
				notification.NotifyError(fmt.Errorf("scheduled batch advance: %w", err))
				continue
			}
			logrus.WithFields(logrus.Fields{
				"settled": len(result.Settled),
				"failed":  len(result.Failed),
				"begin":   result.Next.Begin,
				"end":     result.Next.End,
			}).Info("withdrawal batch advanced")
		}
	}
}

// serverCommands returns the command that starts the custody API server.
func serverCommands(app *custodyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start custody server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			shutdown, err := initializeObservability(ctx, cfg)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			release, err := acquireLease(ctx, app)
			if err != nil {
				log.Fatal(err)
			}
			defer release()

			if err := checkAuditStore(ctx, app); err != nil {
				log.Fatal(err)
			}
			if err := app.custodian.Bootstrap(ctx, cfg.Custody); err != nil {
				log.Fatal(err)
			}

			router, err := initializeRouter(app)
			if err != nil {
				log.Fatal(err)
			}

			go runBatchTicker(ctx, app.custodian, cfg.Custody)

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
