package redis

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNewStream(t *testing.T) {
	tests := []struct {
		name    string
		client  *redis.Client
		stream  string
		opts    []StreamOption[TestMessage]
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid configuration",
			client:  redis.NewClient(&redis.Options{}),
			stream:  "test-stream",
			wantErr: false,
		},
		{
			name:    "nil client",
			client:  nil,
			stream:  "test-stream",
			wantErr: true,
			errMsg:  "redis client cannot be nil",
		},
		{
			name:    "empty stream",
			client:  redis.NewClient(&redis.Options{}),
			stream:  "",
			wantErr: true,
			errMsg:  "stream cannot be empty",
		},
		{
			name:   "with custom options",
			client: redis.NewClient(&redis.Options{}),
			stream: "test-stream",
			opts: []StreamOption[TestMessage]{
				WithStreamLogger[TestMessage](slog.Default()),
				WithStreamBufferSize[TestMessage](200),
				WithStreamParseToFunc[TestMessage](func(msg TestMessage) (map[string]any, error) {
					return map[string]any{"test": "value"}, nil
				}),
				WithStreamParseFromFunc[TestMessage](func(m map[string]any) (TestMessage, error) {
					return TestMessage{}, nil
				}),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			stream, err := NewStream[TestMessage](tt.client, tt.stream, tt.opts...)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Nil(t, stream)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, stream)
				stream.Close()
			}

			if tt.client != nil {
				tt.client.Close()
			}
		})
	}
}

func TestStream_StartStop(t *testing.T) {
	t.Run("normal start and stop", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"test-stream", "$"},
			Count:   10,
			Block:   time.Second,
		}).SetErr(redis.Nil)

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)

		stream.Start()
		time.Sleep(100 * time.Millisecond)
		stream.Close()
	})

	t.Run("multiple close calls", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)

		stream.Close()
		stream.Close() // Should be no-op
	})
}

func TestStream_Publish(t *testing.T) {
	t.Run("successful publish", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		msg := TestMessage{ID: "1", Data: "test data"}
		msgValues, err := DefaultParseToMessage(msg)
		require.NoError(t, err)

		mock.ExpectXAdd(&redis.XAddArgs{
			Stream: "test-stream",
			Values: msgValues,
		}).SetVal("1234-0")

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)

		stream.Start()
		err = stream.Publish(msg)
		assert.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		stream.Close()
	})

	t.Run("publish to closed stream", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)
		stream.Close()

		err = stream.Publish(TestMessage{ID: "1"})
		assert.ErrorIs(t, err, ErrStreamClosed)
	})

	t.Run("publish with custom parse function error", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, _, cleanup := setupTest(t)
		defer cleanup()

		stream, err := NewStream[TestMessage](
			client,
			"test-stream",
			WithStreamParseToFunc[TestMessage](func(TestMessage) (map[string]any, error) {
				return nil, fmt.Errorf("parse error")
			}),
		)
		require.NoError(t, err)

		err = stream.Publish(TestMessage{})
		assert.Error(t, err)

		stream.Close()
	})
}

func TestStream_Subscribe(t *testing.T) {
	t.Run("receive forwarded message", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		msg := TestMessage{ID: "1", Data: "test data"}
		msgValues, err := DefaultParseToMessage(msg)
		require.NoError(t, err)

		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"test-stream", "$"},
			Count:   10,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "test-stream",
				Messages: []redis.XMessage{
					{ID: "1234-0", Values: msgValues},
				},
			},
		})

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)

		stream.Start()
		select {
		case received := <-stream.Subscribe():
			assert.Equal(t, msg, received)
		case <-time.After(time.Second):
			t.Fatal("did not receive message in time")
		}
		stream.Close()
	})

	t.Run("skip malformed message", func(t *testing.T) {
		defer goleak.VerifyNone(t)
		client, mock, cleanup := setupTest(t)
		defer cleanup()

		msg := TestMessage{ID: "2", Data: "valid"}
		msgValues, err := DefaultParseToMessage(msg)
		require.NoError(t, err)

		// 第一則訊息無法解析，應該被跳過而不是中斷整條流
		mock.ExpectXRead(&redis.XReadArgs{
			Streams: []string{"test-stream", "$"},
			Count:   10,
			Block:   time.Second,
		}).SetVal([]redis.XStream{
			{
				Stream: "test-stream",
				Messages: []redis.XMessage{
					{ID: "1234-0", Values: map[string]any{"data": "not base64 !!!"}},
					{ID: "1234-1", Values: msgValues},
				},
			},
		})

		stream, err := NewStream[TestMessage](client, "test-stream")
		require.NoError(t, err)

		stream.Start()
		select {
		case received := <-stream.Subscribe():
			assert.Equal(t, msg, received)
		case <-time.After(time.Second):
			t.Fatal("did not receive message in time")
		}
		stream.Close()
	})
}
