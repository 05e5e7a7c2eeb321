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

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/config"
	redis_db "github.com/blnkfinance/custody/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.WebhookQueue: 3,
		cfg.Queue.HookQueue:    3,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(opt, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      queues,
	}), nil
}

// traced wraps a task handler in a span named after the queue it serves.
func traced(name string, handler asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ctx, span := otel.Tracer("custody.worker").Start(ctx, name)
		defer span.End()

		if err := handler(ctx, t); err != nil {
			span.RecordError(err)
			return err
		}
		return nil
	}
}

func initializeTaskHandlers(app *custodyInstance, mux *asynq.ServeMux) {
	cfg := app.cnf
	mux.HandleFunc(cfg.Queue.WebhookQueue, traced("Deliver Webhook", custody.ProcessWebhook))
	if app.hooks != nil {
		mux.HandleFunc(cfg.Queue.HookQueue, traced("Deliver Hook", app.hooks.ProcessHookTask))
	}
}

func startMonitoring(conf *config.Configuration) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		logrus.WithError(err).Error("monitoring disabled")
		return
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
	log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
	if err := http.ListenAndServe(monitoringAddr, h); err != nil {
		log.Fatalf("could not start asynqmon server: %v", err)
	}
}

// workerCommands defines the "workers" command that delivers queued webhooks and hooks.
func workerCommands(app *custodyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start custody workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}
			if conf.Redis.Dns == "" {
				log.Fatal("workers need a redis dns")
			}

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			if conf.Queue.MonitoringUI {
				go startMonitoring(conf)
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
