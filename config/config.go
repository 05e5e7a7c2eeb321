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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT          = "5001"
	DEFAULT_BATCH_LIMIT   = 10
	DEFAULT_WEBHOOK_QUEUE = "custody_webhooks"
	DEFAULT_HOOK_QUEUE    = "custody_hooks"
	DEFAULT_MONITOR_PORT  = "5004"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CUSTODY_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CUSTODY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CUSTODY_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CUSTODY_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CUSTODY_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CUSTODY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CUSTODY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CUSTODY_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CUSTODY_REDIS_SKIP_TLS_VERIFY"`
}

// CustodyConfig holds the roles and approval policies of the custodian.
type CustodyConfig struct {
	Owner              string   `json:"owner" envconfig:"CUSTODY_OWNER"`
	Account            string   `json:"account" envconfig:"CUSTODY_ACCOUNT"`
	PlatformAdmin      string   `json:"platform_admin" envconfig:"CUSTODY_PLATFORM_ADMIN"`
	Approvers          []string `json:"approvers" envconfig:"CUSTODY_APPROVERS"`
	ApprovalMode       string   `json:"approval_mode" envconfig:"CUSTODY_APPROVAL_MODE"`
	BatchLimit         int      `json:"batch_limit" envconfig:"CUSTODY_BATCH_LIMIT"`
	ApprovalThreshold  int      `json:"approval_threshold" envconfig:"CUSTODY_APPROVAL_THRESHOLD"`
	BatchFailurePolicy string   `json:"batch_failure_policy" envconfig:"CUSTODY_BATCH_FAILURE_POLICY"`
	EnqueuePolicy      string   `json:"enqueue_policy" envconfig:"CUSTODY_ENQUEUE_POLICY"`
	ApproverScope      string   `json:"approver_scope" envconfig:"CUSTODY_APPROVER_SCOPE"`
	SettlementTarget   string   `json:"settlement_target" envconfig:"CUSTODY_SETTLEMENT_TARGET"`
	BatchOperator      string   `json:"batch_operator" envconfig:"CUSTODY_BATCH_OPERATOR"`
	BatchIntervalSec   int      `json:"batch_interval_sec" envconfig:"CUSTODY_BATCH_INTERVAL_SEC"`
}

// GatewayConfig selects the token transfer backend.
type GatewayConfig struct {
	Driver     string            `json:"driver" envconfig:"CUSTODY_GATEWAY_DRIVER"`
	Url        string            `json:"url" envconfig:"CUSTODY_GATEWAY_URL"`
	Timeout    int               `json:"timeout" envconfig:"CUSTODY_GATEWAY_TIMEOUT"`
	MaxRetries int               `json:"max_retries" envconfig:"CUSTODY_GATEWAY_MAX_RETRIES"`
	Headers    map[string]string `json:"headers"`
	Faucet     bool              `json:"faucet" envconfig:"CUSTODY_GATEWAY_FAUCET"` // memory driver only: mint missing funds on pull
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CUSTODY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CUSTODY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CUSTODY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"CUSTODY_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"CUSTODY_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"CUSTODY_WEBHOOK_QUEUE"`
	HookQueue      string `json:"hook_queue" envconfig:"CUSTODY_HOOK_QUEUE"`
	Concurrency    int    `json:"concurrency" envconfig:"CUSTODY_QUEUE_CONCURRENCY"`
	MaxRetry       int    `json:"max_retry" envconfig:"CUSTODY_QUEUE_MAX_RETRY"`
	MonitoringUI   bool   `json:"monitoring_ui" envconfig:"CUSTODY_QUEUE_MONITORING_UI"`
	MonitoringPort string `json:"monitoring_port" envconfig:"CUSTODY_QUEUE_MONITORING_PORT"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"CUSTODY_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"CUSTODY_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Custody         CustodyConfig    `json:"custody"`
	Gateway         GatewayConfig    `json:"gateway"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Queue           QueueConfig      `json:"queue"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("custody", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called custody.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Custody Server"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Custody.Owner = strings.TrimSpace(cnf.Custody.Owner)
	cnf.Custody.Account = strings.TrimSpace(cnf.Custody.Account)

	if cnf.Custody.Owner == "" {
		log.Println("Error: Custody owner is empty. It's a required field.")
		return errors.New("custody owner is required")
	}

	if cnf.Custody.Account == "" {
		cnf.Custody.Account = "custody"
		log.Printf("Warning: Custody account not specified. Setting default account: %s", cnf.Custody.Account)
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Warning: Data source DNS is empty. Events will not be persisted.")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Webhooks and hooks are disabled.")
	}

	if err := cnf.Custody.validateAndAddDefaults(); err != nil {
		return err
	}

	if cnf.Gateway.Driver == "" {
		cnf.Gateway.Driver = "memory"
	}
	if cnf.Gateway.Driver != "memory" && cnf.Gateway.Driver != "http" {
		return fmt.Errorf("unknown gateway driver: %s", cnf.Gateway.Driver)
	}
	if cnf.Gateway.Driver == "http" && cnf.Gateway.Url == "" {
		return errors.New("gateway url is required for the http driver")
	}
	if cnf.Gateway.Timeout <= 0 {
		cnf.Gateway.Timeout = 30
	}
	if cnf.Gateway.MaxRetries < 0 {
		cnf.Gateway.MaxRetries = 0
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.HookQueue == "" {
		cnf.Queue.HookQueue = DEFAULT_HOOK_QUEUE
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 1
	}
	if cnf.Queue.MaxRetry <= 0 {
		cnf.Queue.MaxRetry = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITOR_PORT
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (c *CustodyConfig) validateAndAddDefaults() error {
	if c.ApprovalMode == "" {
		c.ApprovalMode = "batch"
	}
	if !oneOf(c.ApprovalMode, "batch", "quorum") {
		return fmt.Errorf("invalid approval mode: %s", c.ApprovalMode)
	}

	if c.BatchLimit <= 0 {
		c.BatchLimit = DEFAULT_BATCH_LIMIT
	}
	if c.ApprovalThreshold < 0 {
		return errors.New("approval threshold cannot be negative")
	}

	if c.BatchFailurePolicy == "" {
		c.BatchFailurePolicy = "skip"
	}
	if !oneOf(c.BatchFailurePolicy, "skip", "abort") {
		return fmt.Errorf("invalid batch failure policy: %s", c.BatchFailurePolicy)
	}

	if c.EnqueuePolicy == "" {
		c.EnqueuePolicy = "settlement"
	}
	if !oneOf(c.EnqueuePolicy, "settlement", "enqueue") {
		return fmt.Errorf("invalid enqueue policy: %s", c.EnqueuePolicy)
	}

	if c.ApproverScope == "" {
		c.ApproverScope = "global"
	}
	if !oneOf(c.ApproverScope, "global", "asset") {
		return fmt.Errorf("invalid approver scope: %s", c.ApproverScope)
	}

	if c.SettlementTarget == "" {
		c.SettlementTarget = "available"
	}
	if !oneOf(c.SettlementTarget, "available", "payout") {
		return fmt.Errorf("invalid settlement target: %s", c.SettlementTarget)
	}

	if c.BatchIntervalSec < 0 {
		c.BatchIntervalSec = 0
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
