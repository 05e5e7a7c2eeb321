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

package custody

import (
	"context"

	"github.com/blnkfinance/custody/database"
	"github.com/blnkfinance/custody/internal/hooks"
	"github.com/blnkfinance/custody/model"
)

// HookSink fans committed events out to registered hooks.
func HookSink(manager hooks.HookManager) EventSink {
	return EventSinkFunc(manager.DispatchEvent)
}

// AuditSink appends committed events to the audit store.
func AuditSink(store database.IDataSource) EventSink {
	return EventSinkFunc(func(ctx context.Context, event model.Event) error {
		return store.RecordEvent(ctx, event)
	})
}
