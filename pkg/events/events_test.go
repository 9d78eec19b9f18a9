package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(EventTypeTaskClaimed, map[string]any{"id": "t-1", "agent_id": "ethics-1"})

	assert.Equal(t, "task_claimed", env.EventType)
	assert.Equal(t, "t-1", env.Data["id"])

	ts, err := time.Parse(time.RFC3339Nano, env.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(EventTypeKnowledgeAdded, map[string]any{
		"id":    "k-1",
		"space": "governance",
	})

	payload, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.Timestamp, decoded.Timestamp)
	assert.Equal(t, "k-1", decoded.Data["id"])
}

func TestTruncateIfNeeded(t *testing.T) {
	env := NewEnvelope(EventTypeTaskCompleted, map[string]any{
		"id":     "t-huge",
		"output": strings.Repeat("x", notifyLimit),
	})
	payload, err := json.Marshal(env)
	require.NoError(t, err)
	require.Greater(t, len(payload), notifyLimit)

	out, err := truncateIfNeeded(env, payload)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), notifyLimit)

	var truncated map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &truncated))
	assert.Equal(t, true, truncated["truncated"])
	assert.Equal(t, "task_completed", truncated["event_type"])
	data, ok := truncated["data"].(map[string]any)
	require.True(t, ok, "routing id survives truncation")
	assert.Equal(t, "t-huge", data["id"])
}

func TestTruncateIfNeededSmallPayloadUntouched(t *testing.T) {
	env := NewEnvelope(EventTypeAgentStatus, map[string]any{"agent_id": "legal-1"})
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	out, err := truncateIfNeeded(env, payload)
	require.NoError(t, err)
	assert.Equal(t, string(payload), out)
}

func TestListenerDispatch(t *testing.T) {
	l := NewListener("")

	var got []Envelope
	l.handlers[ChannelTaskCompleted] = append(l.handlers[ChannelTaskCompleted], func(env Envelope) {
		got = append(got, env)
	})

	env := NewEnvelope(EventTypeTaskCompleted, map[string]any{"id": "t-2"})
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	l.dispatch(ChannelTaskCompleted, payload)
	require.Len(t, got, 1)
	assert.Equal(t, "t-2", got[0].Data["id"])

	// Undecodable payloads are dropped, not fatal.
	l.dispatch(ChannelTaskCompleted, []byte("not json"))
	assert.Len(t, got, 1)

	// Unsubscribed channels dispatch to no one.
	l.dispatch(ChannelTaskFailed, payload)
	assert.Len(t, got, 1)
}
