package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/custody"
	"github.com/blnkfinance/custody/config"
)

const redacted = "[redacted]"

// custodyView is what `custody config` prints: the resolved custodian policy
// plus the transport sections it depends on, with credentials masked.
type custodyView struct {
	Custody struct {
		Owner              string   `json:"owner"`
		Account            string   `json:"account"`
		PlatformAdmin      string   `json:"platform_admin,omitempty"`
		Approvers          []string `json:"approvers,omitempty"`
		ApprovalMode       string   `json:"approval_mode"`
		BatchLimit         int      `json:"batch_limit"`
		ApprovalThreshold  int      `json:"approval_threshold"`
		BatchFailurePolicy string   `json:"batch_failure_policy"`
		EnqueuePolicy      string   `json:"enqueue_policy"`
		ApproverScope      string   `json:"approver_scope"`
		SettlementTarget   string   `json:"settlement_target"`
		BatchOperator      string   `json:"batch_operator,omitempty"`
		BatchIntervalSec   int      `json:"batch_interval_sec,omitempty"`
	} `json:"custody"`
	Gateway struct {
		Driver     string            `json:"driver"`
		Url        string            `json:"url,omitempty"`
		Timeout    int               `json:"timeout"`
		MaxRetries int               `json:"max_retries"`
		Headers    map[string]string `json:"headers,omitempty"`
	} `json:"gateway"`
	Queue      config.QueueConfig `json:"queue"`
	Port       string             `json:"port"`
	Redis      string             `json:"redis"`
	DataSource string             `json:"data_source,omitempty"`
	Secured    bool               `json:"secured"`
	Slack      string             `json:"slack_webhook,omitempty"`
	Webhook    string             `json:"webhook,omitempty"`
}

func newCustodyView(cfg *config.Configuration) (custodyView, error) {
	opts, err := custody.ResolveOptions(cfg)
	if err != nil {
		return custodyView{}, err
	}

	var v custodyView
	v.Custody.Owner = string(opts.Owner)
	v.Custody.Account = string(opts.Account)
	v.Custody.PlatformAdmin = cfg.Custody.PlatformAdmin
	v.Custody.Approvers = cfg.Custody.Approvers
	v.Custody.ApprovalMode = string(opts.ApprovalMode)
	v.Custody.BatchLimit = opts.BatchLimit
	v.Custody.ApprovalThreshold = opts.ApprovalThreshold
	v.Custody.BatchFailurePolicy = string(opts.BatchFailurePolicy)
	v.Custody.EnqueuePolicy = string(opts.EnqueuePolicy)
	v.Custody.ApproverScope = string(opts.ApproverScope)
	v.Custody.SettlementTarget = string(opts.SettlementTarget)
	v.Custody.BatchOperator = cfg.Custody.BatchOperator
	v.Custody.BatchIntervalSec = cfg.Custody.BatchIntervalSec

	v.Gateway.Driver = cfg.Gateway.Driver
	v.Gateway.Url = cfg.Gateway.Url
	v.Gateway.Timeout = cfg.Gateway.Timeout
	v.Gateway.MaxRetries = cfg.Gateway.MaxRetries
	if len(cfg.Gateway.Headers) > 0 {
		// header values are usually bearer tokens
		v.Gateway.Headers = make(map[string]string, len(cfg.Gateway.Headers))
		for k := range cfg.Gateway.Headers {
			v.Gateway.Headers[k] = redacted
		}
	}

	v.Queue = cfg.Queue
	v.Port = cfg.Server.Port
	v.Redis = redactDSN(cfg.Redis.Dns)
	v.DataSource = redactDSN(cfg.DataSource.Dns)
	v.Secured = cfg.Server.Secure && cfg.Server.SecretKey != ""
	if cfg.Notification.Slack.WebhookUrl != "" {
		v.Slack = redacted
	}
	if cfg.Notification.Webhook.Url != "" {
		v.Webhook = redactDSN(cfg.Notification.Webhook.Url)
	}
	return v, nil
}

// redactDSN keeps the scheme and host of a connection string and masks
// credentials, path and query.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	if !strings.Contains(dsn, "://") {
		// bare host:port
		if strings.Contains(dsn, "@") {
			return redacted
		}
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return redacted
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}

func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "config prints the custody policy and transports this instance resolves to",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			view, err := newCustodyView(cfg)
			if err != nil {
				log.Fatalf("Invalid custody configuration: %v\n", err)
			}

			data, err := json.MarshalIndent(view, "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}
			fmt.Println(string(data))
		},
	}
	return cmd
}
