package auction

import (
	"sync"

	"github.com/google/uuid"
)

// KeyedMutex 提供以拍賣ID為範圍的互斥鎖。
// 針對同一場拍賣的驗證與提交必須序列化，不同拍賣之間則可完全並行。
// 鎖的實例以lazy的方式建立，且一旦建立就不會回收，
// 拍賣數量有限所以不需要額外的生命週期管理。
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewKeyedMutex 建立一個新的 KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Lock 取得指定拍賣的互斥鎖，回傳對應的解鎖函式
func (km *KeyedMutex) Lock(id uuid.UUID) (unlock func()) {
	km.mu.Lock()
	lock, ok := km.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		km.locks[id] = lock
	}
	km.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
