package database

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/custody/config"
)

// testDNS points at a live Postgres for the connection tests that need one.
func testDNS(t *testing.T) string {
	dns := os.Getenv("CUSTODY_TEST_DATA_SOURCE_DNS")
	if dns == "" {
		t.Skip("CUSTODY_TEST_DATA_SOURCE_DNS not set")
	}
	return dns
}

func TestGetDBConnection_Singleton(t *testing.T) {
	dns := testDNS(t)
	instance = nil
	once = sync.Once{}

	mockConfig := &config.Configuration{
		DataSource: config.DataSourceConfig{Dns: dns},
	}
	config.MockConfig(mockConfig)

	ds1, err := GetDBConnection(mockConfig)
	assert.NoError(t, err)
	assert.NotNil(t, ds1)

	ds2, err := GetDBConnection(mockConfig)
	assert.NoError(t, err)
	assert.Equal(t, ds1, ds2)
}

func TestGetDBConnection_Failure(t *testing.T) {
	instance = nil
	once = sync.Once{}

	mockConfig := &config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "invalid-dns"},
	}

	_, err := GetDBConnection(mockConfig)
	assert.Error(t, err)

	// a failed connection does not poison later attempts
	_, err = GetDBConnection(&config.Configuration{})
	assert.EqualError(t, err, "data source dns is empty")
}

func TestConnectDB_Success(t *testing.T) {
	db, err := ConnectDB(testDNS(t))
	assert.NoError(t, err)
	if assert.NotNil(t, db) {
		defer db.Close()
	}
}

func TestConnectDB_Failure(t *testing.T) {
	db, err := ConnectDB("invalid-dns")
	assert.Error(t, err)
	assert.Nil(t, db)

	db, err = ConnectDB("")
	assert.Error(t, err)
	assert.Nil(t, db)
}
