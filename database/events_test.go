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

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/custody/model"
)

var columns = []string{"event_id", "sequence", "type", "actor", "asset", "holder", "counterparty", "amount", "request_index", "data", "created_at"}

func TestRecordEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	now := time.Now()
	index := 3
	event := model.Event{
		EventID:      "evt_1",
		Sequence:     7,
		Type:         model.EventWithdrawalSettled,
		Actor:        "approver",
		Asset:        "USDC",
		Holder:       "alice",
		Amount:       18446744073709551615,
		RequestIndex: &index,
		Data:         map[string]interface{}{"target": "available"},
		CreatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO custody.events").
		WithArgs("evt_1", int64(7), model.EventWithdrawalSettled, "approver", "USDC", "alice", "",
			"18446744073709551615", sqlmock.AnyArg(), []byte(`{"target":"available"}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, ds.RecordEvent(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordEvent_SequenceConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	mock.ExpectExec("INSERT INTO custody.events").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = ds.RecordEvent(context.Background(), model.Event{EventID: "evt_2", Sequence: 7, Type: model.EventDeposit})
	assert.True(t, errors.Is(err, ErrSequenceConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	now := time.Now()
	rows := sqlmock.NewRows(columns).
		AddRow("evt_1", int64(1), model.EventDeposit, "alice", "USDC", "alice", nil, "100", nil, []byte("null"), now).
		AddRow("evt_2", int64(2), model.EventWithdrawalRequested, "alice", "USDC", "alice", nil, "40", int64(0), []byte("null"), now)

	mock.ExpectQuery(`SELECT .+ FROM custody.events WHERE sequence > \$1 AND holder = \$2 ORDER BY sequence ASC LIMIT \$3`).
		WithArgs(int64(0), "alice", 10).
		WillReturnRows(rows)

	events, err := ds.GetEvents(context.Background(), EventFilter{Holder: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, uint64(100), events[0].Amount)
	assert.Nil(t, events[0].RequestIndex)
	assert.Equal(t, model.Holder(""), events[0].Counterparty)
	require.NotNil(t, events[1].RequestIndex)
	assert.Equal(t, 0, *events[1].RequestIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventsByRequest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}
	now := time.Now()
	rows := sqlmock.NewRows(columns).
		AddRow("evt_5", int64(5), model.EventWithdrawalApproved, "a1", "USDC", "bob", nil, "10", int64(2), []byte(`{"approval_count":1}`), now)

	mock.ExpectQuery("SELECT .+ FROM custody.events").
		WithArgs(2).
		WillReturnRows(rows)

	events, err := ds.GetEventsByRequest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, float64(1), events[0].Data["approval_count"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ds := Datasource{Conn: db}

	mock.ExpectQuery(`SELECT MAX\(sequence\) FROM custody.events`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	last, err := ds.LastSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	mock.ExpectQuery(`SELECT MAX\(sequence\) FROM custody.events`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(42)))
	last, err = ds.LastSequence(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectDB_EmptyDNS(t *testing.T) {
	db, err := ConnectDB("")
	assert.Error(t, err)
	assert.Nil(t, db)
}
