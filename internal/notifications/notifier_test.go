package notifications

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChannelIsPerUser(t *testing.T) {
	id := uuid.MustParse("6f1c2b7e-0c57-4a53-9b51-3d6f3c1d2a10")
	assert.Equal(t, "notifications:6f1c2b7e-0c57-4a53-9b51-3d6f3c1d2a10", Channel(id))
}

func TestLogNotifierWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{log: zerolog.New(&buf)}

	session := uuid.New()
	n.Notify(context.Background(), uuid.New(), Notification{
		Type:      TypeSessionCompleted,
		Message:   "session completed",
		SessionID: session,
	})

	out := buf.String()
	assert.Contains(t, out, `"type":"session-completed"`)
	assert.Contains(t, out, session.String())
	assert.Contains(t, out, "session completed")
}
