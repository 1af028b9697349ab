package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/dukex/stepflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	recipients []string
	message    string
}

func (f *fakeSender) Send(_ context.Context, recipients []string, message string) error {
	f.recipients = recipients
	f.message = message

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFactoryCreateValidation(t *testing.T) {
	factory := NewActionFactory(&fakeSender{})

	_, err := factory.Create(map[string]any{"recipients": "assignee"})
	assert.Error(t, err, "missing message")

	_, err = factory.Create(map[string]any{"recipients": "everyone", "message": "hi"})
	assert.Error(t, err, "unknown recipient group")

	_, err = factory.Create(map[string]any{"recipients": "custom", "message": "hi"})
	assert.Error(t, err, "custom without addresses")
}

func TestExecuteResolvesRecipients(t *testing.T) {
	instanceContext := map[string]any{
		"assignee":  map[string]any{"email": "worker@example.com"},
		"requester": map[string]any{"id": "user-9"},
	}

	tests := []struct {
		name     string
		config   map[string]any
		expected []string
	}{
		{
			name:     "assignee by email",
			config:   map[string]any{"recipients": "assignee", "message": "done"},
			expected: []string{"worker@example.com"},
		},
		{
			name:     "requester falls back to id",
			config:   map[string]any{"recipients": "requester", "message": "done"},
			expected: []string{"user-9"},
		},
		{
			name:     "admins sentinel",
			config:   map[string]any{"recipients": "admins", "message": "done"},
			expected: []string{"admins"},
		},
		{
			name:     "custom list",
			config:   map[string]any{"recipients": "custom", "custom": "a@x.com, b@x.com", "message": "done"},
			expected: []string{"a@x.com", "b@x.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			executor, err := NewActionFactory(sender).Create(tt.config)
			require.NoError(t, err)

			execCtx := models.ExecutionContext{InstanceID: "inst-1", Context: instanceContext}

			_, err = executor.Execute(context.Background(), execCtx, testLogger())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sender.recipients)
			assert.Equal(t, "done", sender.message)
		})
	}
}

func TestExecuteUnresolvableRecipientFails(t *testing.T) {
	sender := &fakeSender{}
	executor, err := NewActionFactory(sender).Create(map[string]any{"recipients": "assignee", "message": "done"})
	require.NoError(t, err)

	_, err = executor.Execute(context.Background(), models.ExecutionContext{Context: map[string]any{}}, testLogger())
	assert.Error(t, err)
}
