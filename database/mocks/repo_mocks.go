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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) RecordEvent(ctx context.Context, event model.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockDataSource) GetEvents(ctx context.Context, filter database.EventFilter) ([]model.Event, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *MockDataSource) GetEventsByRequest(ctx context.Context, requestIndex int) ([]model.Event, error) {
	args := m.Called(ctx, requestIndex)
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *MockDataSource) LastSequence(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}
