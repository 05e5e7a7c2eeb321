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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndAddDefaults(t *testing.T) {
	cnf := Configuration{}
	err := cnf.validateAndAddDefaults()
	assert.EqualError(t, err, "custody owner is required")

	cnf = Configuration{Custody: CustodyConfig{Owner: " owner "}}
	require.NoError(t, cnf.validateAndAddDefaults())

	assert.Equal(t, "owner", cnf.Custody.Owner)
	assert.Equal(t, "custody", cnf.Custody.Account)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, "batch", cnf.Custody.ApprovalMode)
	assert.Equal(t, DEFAULT_BATCH_LIMIT, cnf.Custody.BatchLimit)
	assert.Equal(t, "skip", cnf.Custody.BatchFailurePolicy)
	assert.Equal(t, "settlement", cnf.Custody.EnqueuePolicy)
	assert.Equal(t, "global", cnf.Custody.ApproverScope)
	assert.Equal(t, "available", cnf.Custody.SettlementTarget)
	assert.Equal(t, "memory", cnf.Gateway.Driver)
	assert.Equal(t, 30, cnf.Gateway.Timeout)
	assert.Equal(t, DEFAULT_WEBHOOK_QUEUE, cnf.Queue.WebhookQueue)
	assert.Equal(t, DEFAULT_HOOK_QUEUE, cnf.Queue.HookQueue)
	assert.Equal(t, DEFAULT_MONITOR_PORT, cnf.Queue.MonitoringPort)
	assert.Nil(t, cnf.RateLimit.RequestsPerSecond)
	assert.Nil(t, cnf.RateLimit.Burst)
}

func TestValidateAndAddDefaults_InvalidPolicies(t *testing.T) {
	tests := []struct {
		name    string
		custody CustodyConfig
		gateway GatewayConfig
		wantErr string
	}{
		{
			name:    "unknown approval mode",
			custody: CustodyConfig{Owner: "o", ApprovalMode: "majority"},
			wantErr: "invalid approval mode: majority",
		},
		{
			name:    "unknown failure policy",
			custody: CustodyConfig{Owner: "o", BatchFailurePolicy: "retry"},
			wantErr: "invalid batch failure policy: retry",
		},
		{
			name:    "unknown enqueue policy",
			custody: CustodyConfig{Owner: "o", EnqueuePolicy: "never"},
			wantErr: "invalid enqueue policy: never",
		},
		{
			name:    "unknown approver scope",
			custody: CustodyConfig{Owner: "o", ApproverScope: "region"},
			wantErr: "invalid approver scope: region",
		},
		{
			name:    "unknown settlement target",
			custody: CustodyConfig{Owner: "o", SettlementTarget: "escrow"},
			wantErr: "invalid settlement target: escrow",
		},
		{
			name:    "negative threshold",
			custody: CustodyConfig{Owner: "o", ApprovalThreshold: -1},
			wantErr: "approval threshold cannot be negative",
		},
		{
			name:    "http gateway without url",
			custody: CustodyConfig{Owner: "o"},
			gateway: GatewayConfig{Driver: "http"},
			wantErr: "gateway url is required for the http driver",
		},
		{
			name:    "unknown gateway driver",
			custody: CustodyConfig{Owner: "o"},
			gateway: GatewayConfig{Driver: "chain"},
			wantErr: "unknown gateway driver: chain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cnf := Configuration{Custody: tt.custody, Gateway: tt.gateway}
			err := cnf.validateAndAddDefaults()
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidateAndAddDefaults_RateLimit(t *testing.T) {
	rps := 10.0
	cnf := Configuration{
		Custody:   CustodyConfig{Owner: "o"},
		RateLimit: RateLimitConfig{RequestsPerSecond: &rps},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	require.NotNil(t, cnf.RateLimit.Burst)
	assert.Equal(t, 20, *cnf.RateLimit.Burst)
	assert.Equal(t, 10800, *cnf.RateLimit.CleanupIntervalSec)

	burst := 8
	cnf = Configuration{
		Custody:   CustodyConfig{Owner: "o"},
		RateLimit: RateLimitConfig{Burst: &burst},
	}
	require.NoError(t, cnf.validateAndAddDefaults())
	require.NotNil(t, cnf.RateLimit.RequestsPerSecond)
	assert.Equal(t, 4.0, *cnf.RateLimit.RequestsPerSecond)
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "custody.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Custody: CustodyConfig{
			Owner:             "owner-1",
			ApprovalMode:      "quorum",
			ApprovalThreshold: 2,
		},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("CUSTODY_PROJECT_NAME", "Env Project")
	t.Setenv("CUSTODY_BATCH_LIMIT", "25")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, "Env Project", loadedConfig.ProjectName)
	assert.Equal(t, "temp-dns", loadedConfig.DataSource.Dns)
	assert.Equal(t, "quorum", loadedConfig.Custody.ApprovalMode)
	assert.Equal(t, 2, loadedConfig.Custody.ApprovalThreshold)
	assert.Equal(t, 25, loadedConfig.Custody.BatchLimit)
}

func TestInitConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("CUSTODY_OWNER", "env-owner")
	t.Setenv("CUSTODY_APPROVERS", "a1,a2")

	err := InitConfig("does-not-exist.json")
	require.NoError(t, err)

	loadedConfig, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "env-owner", loadedConfig.Custody.Owner)
	assert.Equal(t, []string{"a1", "a2"}, loadedConfig.Custody.Approvers)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{ProjectName: "mocked"})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "mocked", cnf.ProjectName)
}
