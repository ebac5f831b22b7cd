/*
Copyright 2025.

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

package logctx

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
)

func TestWithSessionID(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-123")

	if got := SessionID(ctx); got != "sess-123" {
		t.Errorf("SessionID() = %q, want %q", got, "sess-123")
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-456")

	if got := RequestID(ctx); got != "req-456" {
		t.Errorf("RequestID() = %q, want %q", got, "req-456")
	}
}

func TestWithLoggingContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithLoggingContext(ctx, &LoggingFields{
		SessionID: "sess-1",
		RequestID: "req-1",
	})

	fields := ExtractLoggingFields(ctx)

	if fields.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", fields.SessionID, "sess-1")
	}
	if fields.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want %q", fields.RequestID, "req-1")
	}
}

func TestWithLoggingContextNil(t *testing.T) {
	ctx := context.Background()
	result := WithLoggingContext(ctx, nil)

	if result != ctx {
		t.Error("WithLoggingContext(ctx, nil) should return the same context")
	}
}

func TestWithLoggingContextPartial(t *testing.T) {
	ctx := context.Background()
	ctx = WithLoggingContext(ctx, &LoggingFields{
		SessionID: "sess-only",
	})

	fields := ExtractLoggingFields(ctx)

	if fields.SessionID != "sess-only" {
		t.Errorf("SessionID = %q, want %q", fields.SessionID, "sess-only")
	}
	if fields.RequestID != "" {
		t.Errorf("RequestID = %q, want empty", fields.RequestID)
	}
}

func TestExtractLoggingFieldsEmpty(t *testing.T) {
	ctx := context.Background()
	fields := ExtractLoggingFields(ctx)

	if fields.SessionID != "" {
		t.Errorf("SessionID = %q, want empty", fields.SessionID)
	}
	if fields.RequestID != "" {
		t.Errorf("RequestID = %q, want empty", fields.RequestID)
	}
}

func TestLogrValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-123")
	ctx = WithRequestID(ctx, "req-456")

	values := LogrValues(ctx)

	if len(values) != 4 {
		t.Errorf("len(LogrValues) = %d, want 4", len(values))
	}

	found := make(map[string]string)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			t.Errorf("key at index %d is not a string", i)
			continue
		}
		val, ok := values[i+1].(string)
		if !ok {
			t.Errorf("value at index %d is not a string", i+1)
			continue
		}
		found[key] = val
	}

	if found["session_id"] != "sess-123" {
		t.Errorf("session_id = %q, want %q", found["session_id"], "sess-123")
	}
	if found["request_id"] != "req-456" {
		t.Errorf("request_id = %q, want %q", found["request_id"], "req-456")
	}
}

func TestLogrValuesEmpty(t *testing.T) {
	ctx := context.Background()
	values := LogrValues(ctx)

	if len(values) != 0 {
		t.Errorf("len(LogrValues) = %d, want 0", len(values))
	}
}

func TestLogrValuesSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKeySessionID, "")
	ctx = WithRequestID(ctx, "req-456")

	values := LogrValues(ctx)

	if len(values) != 2 {
		t.Errorf("len(LogrValues) = %d, want 2", len(values))
	}
}

func TestLoggerWithContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-123")
	ctx = WithRequestID(ctx, "req-456")

	log := logr.Discard()
	enriched := LoggerWithContext(log, ctx)

	enriched.Info("test message")
}

func TestLoggerWithContextEmpty(t *testing.T) {
	ctx := context.Background()
	log := logr.Discard()

	enriched := LoggerWithContext(log, ctx)

	enriched.Info("test message")
}

func TestGettersReturnEmptyOnWrongType(t *testing.T) {
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKeySessionID, 123)
	ctx = context.WithValue(ctx, ContextKeyRequestID, struct{}{})

	if got := SessionID(ctx); got != "" {
		t.Errorf("SessionID() = %q, want empty for int value", got)
	}
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID() = %q, want empty for struct value", got)
	}
}

func TestChainedContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithRequestID(ctx, "req-1")

	ctx = WithSessionID(ctx, "sess-2")

	if got := SessionID(ctx); got != "sess-2" {
		t.Errorf("SessionID() = %q, want %q", got, "sess-2")
	}
	if got := RequestID(ctx); got != "req-1" {
		t.Errorf("RequestID() = %q, want %q", got, "req-1")
	}
}
