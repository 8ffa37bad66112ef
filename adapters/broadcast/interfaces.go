//go:generate mockgen -package=broadcast -destination=mock.go -source=interfaces.go

package broadcast

// PublishRequest 表示一個發布請求，包含主題名稱和訊息。
type PublishRequest[T any] struct {
	Topic   string `json:"topic" msgpack:"topic"`
	Message T      `json:"message" msgpack:"message"`
}

// IChannel 定義了單一主題的訂閱者集合介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者；來不及接收的訂閱者會被移除
	Broadcast(message T)
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// IEventStream 定義了跨節點訊息流的介面，
// 讓多個服務實例共用同一條事件流協同廣播。
type IEventStream[T any] interface {
	Start()
	Publish(data T) error
	Subscribe() <-chan T
	Close()
}

// IManager 定義了廣播管理員的介面
type IManager[T any] interface {
	// Start 啟動 Manager，開始處理訊息的接收與廣播。
	// 應在呼叫其他方法前先呼叫此方法。
	Start()
	// Done 停止 Manager，釋放所有資源。
	Done()
	// Subscribe 註冊並訂閱指定主題，返回一個新的接收通道。
	Subscribe(topic string) (<-chan T, error)
	// Publish 將資料推送到指定主題。
	Publish(topic string, data T) error
	// Unsubscribe 取消訂閱指定主題。
	Unsubscribe(topic string, ch <-chan T)
}
