package broadcast

import (
	"sync"
)

// subscriberBuffer 是每個訂閱者通道的緩衝大小。
// 緩衝塞滿代表觀察者已經停止消費(斷線或卡死)，該訂閱會被直接移除。
const subscriberBuffer = 16

// Channel 管理針對某個主題的所有訂閱者，並將訊息廣播給所有訂閱者。
// 對單一訂閱者的傳送是非阻塞的：
// 緩衝已滿的訂閱者會被取消訂閱並關閉通道，而不是讓它拖住整個發布流程，
// 所以一個斷線或緩慢的觀察者不會影響其他觀察者收到訊息。
type Channel[T any] struct {
	subscribers map[<-chan T]chan T
	mu          sync.RWMutex
}

// NewChannel 建立一個新的主題頻道
func NewChannel[T any]() IChannel[T] {
	return &Channel[T]{
		subscribers: make(map[<-chan T]chan T),
	}
}

// Subscribe 建立一個新的帶緩衝通道，將其加入 subscribers，並回傳唯讀通道給呼叫者。
func (c *Channel[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan T, subscriberBuffer)
	c.subscribers[ch] = ch
	return ch
}

// Unsubscribe 從 subscribers 中移除指定的通道，並關閉該通道。
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if writeCh, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		close(writeCh)
	}
}

// UnsubscribeAll 關閉所有訂閱者的通道並清空訂閱清單。
func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, writeCh := range c.subscribers {
		close(writeCh)
	}
	clear(c.subscribers)
}

// Broadcast 將訊息廣播給所有仍在訂閱清單中的通道。
// 無法立即寫入的訂閱者視為已死，當場移除並關閉。
func (c *Channel[T]) Broadcast(message T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for readCh, writeCh := range c.subscribers {
		select {
		case writeCh <- message:
		default:
			delete(c.subscribers, readCh)
			close(writeCh)
		}
	}
}

// IsIdle 判斷 subscribers 是否為空。
func (c *Channel[T]) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}
