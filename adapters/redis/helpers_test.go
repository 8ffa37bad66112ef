package redis

import (
	"io"
	"log"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// setupTest 建立mock的redis客戶端，cleanup時驗證所有預期的命令都被呼叫過
func setupTest(t *testing.T) (*redis.Client, redismock.ClientMock, func()) {
	db, mock := redismock.NewClientMock()
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

// TestMessage 是測試用的訊息，模擬跨節點廣播的事件封包
type TestMessage struct {
	ID   string `json:"id" msgpack:"id"`
	Data string `json:"data" msgpack:"data"`
}
