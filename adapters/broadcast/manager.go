package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

type managerOptions[T any] struct {
	logger *slog.Logger
	stream IEventStream[PublishRequest[T]]
}

type ManagerOption[T any] func(*managerOptions[T])

// WithLogger 設定日誌記錄器
func WithLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithEventStream 設定跨節點訊息流。
// 設定之後 Publish 會先寫入訊息流，再由每個節點的消費端廣播給本地訂閱者，
// 讓多個服務實例能夠協同運作；未設定時訊息只會廣播給本行程內的訂閱者。
func WithEventStream[T any](stream IEventStream[PublishRequest[T]]) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.stream = stream
	}
}

// manager 管理多個主題的訂閱與發布。
// 訂閱者集合是行程內的共享狀態，由 manager 自己的鎖保護，
// 與任何per-auction鎖完全解耦。
type manager[T any] struct {
	logger *slog.Logger

	mu     sync.RWMutex   // 保護 active 和 channels 的讀寫
	wg     sync.WaitGroup // 用於等待所有 goroutine 完成
	active bool           // 標記 manager 是否正在運作中

	stream   IEventStream[PublishRequest[T]] // 跨節點訊息流，可為nil
	channels map[string]IChannel[T]          // 儲存所有活躍的主題
}

// NewManager 建立一個新的廣播管理器
func NewManager[T any](opts ...ManagerOption[T]) (IManager[T], error) {
	options := managerOptions[T]{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &manager[T]{
		logger:   options.logger.With(slog.String("caller", "BroadcastManager")),
		stream:   options.stream,
		channels: make(map[string]IChannel[T]),
		active:   true,
	}, nil
}

// Start 啟動廣播管理器，開始處理訊息的接收與廣播。
// 應在呼叫其他方法前先呼叫此方法。
func (m *manager[T]) Start() {
	if m.stream == nil {
		return
	}
	m.stream.Start()

	// 啟動訊息轉發的 goroutine
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for msg := range m.stream.Subscribe() {
			m.route(msg)
		}
	}()
}

// Done 停止廣播管理器的運作。
func (m *manager[T]) Done() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.mu.Unlock()

	if m.stream != nil {
		m.stream.Close()
	}
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, channel := range m.channels {
		channel.UnsubscribeAll()
	}
	clear(m.channels)
}

// Subscribe 訂閱指定的主題。
func (m *manager[T]) Subscribe(topic string) (<-chan T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil, context.Canceled
	}

	c, ok := m.channels[topic]
	if !ok {
		c = NewChannel[T]()
		m.channels[topic] = c
	}
	return c.Subscribe(), nil
}

// Publish 發布訊息到指定的主題。
// 有設定訊息流時經由訊息流繞一圈(所有節點都會收到)，否則直接廣播給本地訂閱者。
func (m *manager[T]) Publish(topic string, data T) error {
	m.mu.RLock()
	if !m.active {
		m.mu.RUnlock()
		return context.Canceled
	}
	m.mu.RUnlock()

	request := PublishRequest[T]{Topic: topic, Message: data}
	if m.stream != nil {
		return m.stream.Publish(request)
	}
	m.route(request)
	return nil
}

// Unsubscribe 取消訂閱指定的主題。
func (m *manager[T]) Unsubscribe(topic string, ch <-chan T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.channels[topic]
	if !ok {
		return
	}

	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(m.channels, topic)
	}
}

// route 將單一訊息廣播給對應主題的本地訂閱者
func (m *manager[T]) route(request PublishRequest[T]) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if channel, ok := m.channels[request.Topic]; ok {
		channel.Broadcast(request.Message)
	}
}
