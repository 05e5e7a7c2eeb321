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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/custody/model"
)

var tracer = otel.Tracer("custody.database")

const eventColumns = `event_id, sequence, type, actor, asset, holder, counterparty, amount, request_index, data, created_at`

// ErrSequenceConflict means a different event already holds the sequence number,
// so two custodians wrote to the same store.
var ErrSequenceConflict = errors.New("event sequence already recorded by another event")

// RecordEvent stores a committed event. Recording the same event twice is a no-op.
func (d Datasource) RecordEvent(ctx context.Context, event model.Event) error {
	ctx, span := tracer.Start(ctx, "Recording event")
	defer span.End()

	data, err := json.Marshal(event.Data)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var requestIndex sql.NullInt64
	if event.RequestIndex != nil {
		requestIndex = sql.NullInt64{Int64: int64(*event.RequestIndex), Valid: true}
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO custody.events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, int64(event.Sequence), event.Type, string(event.Actor), string(event.Asset),
		string(event.Holder), string(event.Counterparty), strconv.FormatUint(event.Amount, 10),
		requestIndex, data, event.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = fmt.Errorf("%w: sequence %d", ErrSequenceConflict, event.Sequence)
		}
		span.RecordError(err)
		return err
	}
	return nil
}

// GetEvents lists stored events in sequence order.
func (d Datasource) GetEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	ctx, span := tracer.Start(ctx, "Fetching events")
	defer span.End()

	var (
		conditions = []string{"sequence > $1"}
		args       = []interface{}{int64(filter.AfterSequence)}
	)
	addCondition := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addCondition("type", filter.Type)
	addCondition("holder", string(filter.Holder))
	addCondition("asset", string(filter.Asset))

	query := `SELECT ` + eventColumns + ` FROM custody.events WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY sequence ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := d.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

// GetEventsByRequest returns every event that touched one withdrawal request.
func (d Datasource) GetEventsByRequest(ctx context.Context, requestIndex int) ([]model.Event, error) {
	ctx, span := tracer.Start(ctx, "Fetching request events")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM custody.events
		WHERE request_index = $1
		ORDER BY sequence ASC
	`, requestIndex)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

func (d Datasource) LastSequence(ctx context.Context) (uint64, error) {
	var last sql.NullInt64
	if err := d.Conn.QueryRowContext(ctx, `SELECT MAX(sequence) FROM custody.events`).Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return uint64(last.Int64), nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	events := make([]model.Event, 0)
	for rows.Next() {
		var (
			event                                      model.Event
			sequence                                   int64
			actor, asset, holder, counterparty, amount sql.NullString
			requestIndex                               sql.NullInt64
			data                                       []byte
		)
		err := rows.Scan(&event.EventID, &sequence, &event.Type, &actor, &asset, &holder,
			&counterparty, &amount, &requestIndex, &data, &event.CreatedAt)
		if err != nil {
			return nil, err
		}

		event.Sequence = uint64(sequence)
		event.Actor = model.Holder(actor.String)
		event.Asset = model.Asset(asset.String)
		event.Holder = model.Holder(holder.String)
		event.Counterparty = model.Holder(counterparty.String)
		if amount.Valid {
			if event.Amount, err = strconv.ParseUint(amount.String, 10, 64); err != nil {
				return nil, fmt.Errorf("event %s amount: %w", event.EventID, err)
			}
		}
		if requestIndex.Valid {
			index := int(requestIndex.Int64)
			event.RequestIndex = &index
		}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &event.Data); err != nil {
				return nil, fmt.Errorf("event %s data: %w", event.EventID, err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
