package common

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/constants"
)

func TestPushTask_EncodeDecode(t *testing.T) {
	task := PushTask{
		Kind:       constants.ResourceMember,
		Op:         PushOpCreate,
		LocalID:    "local:6f1c",
		Reason:     "timeout",
		EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := encodeTask(task)
	require.NoError(t, err)

	got, err := decodeTask(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": data}})
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestPushTask_DecodeRejectsMalformed(t *testing.T) {
	_, err := decodeTask(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"other": "x"}})
	assert.Error(t, err)

	_, err = decodeTask(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"data": "{not json"}})
	assert.Error(t, err)
}
