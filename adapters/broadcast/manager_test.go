package broadcast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pennybid/adapters/broadcast"
)

func TestManager(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := broadcast.NewManager[Message]()
	assert.NoError(t, err)
	m.Start()
	defer m.Done()

	// 測試訂閱
	ch, err := m.Subscribe("test_topic")
	assert.NoError(t, err)
	assert.NotNil(t, ch)

	// 測試發布訊息
	msg := Message{Data: "test message"}
	err = m.Publish("test_topic", msg)
	assert.NoError(t, err)

	select {
	case received := <-ch:
		assert.Equal(t, msg, received)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}

	// 測試取消訂閱
	m.Unsubscribe("test_topic", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")
}

func TestManagerTopicIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := broadcast.NewManager[Message]()
	assert.NoError(t, err)
	m.Start()
	defer m.Done()

	first, err := m.Subscribe("topic_a")
	assert.NoError(t, err)
	second, err := m.Subscribe("topic_b")
	assert.NoError(t, err)

	// 發布到topic_a的訊息不會流到topic_b的訂閱者
	assert.NoError(t, m.Publish("topic_a", Message{Data: "for a"}))
	select {
	case received := <-first:
		assert.Equal(t, "for a", received.Data)
	case <-time.After(time.Second):
		t.Fatal("did not receive message in time")
	}
	select {
	case received := <-second:
		t.Fatalf("unexpected message on topic_b: %v", received)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManagerRejectsAfterDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, err := broadcast.NewManager[Message]()
	assert.NoError(t, err)
	m.Start()

	ch, err := m.Subscribe("test_topic")
	assert.NoError(t, err)

	// Done之後所有訂閱者的通道被關閉，新的操作一律拒絕
	m.Done()
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	_, err = m.Subscribe("test_topic")
	assert.Error(t, err)
	assert.Error(t, m.Publish("test_topic", Message{Data: "late"}))

	// 重複Done是安全的
	m.Done()
}
