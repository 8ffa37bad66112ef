package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

// ErrStreamClosed 表示訊息流已關閉
var ErrStreamClosed = errors.New("stream is closed")

type streamOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	parseTo      func(T) (map[string]any, error)
	parseFrom    func(map[string]any) (T, error)
	readBlock    time.Duration
	errorBackoff time.Duration
}

type StreamOption[T any] func(*streamOptions[T])

// WithStreamLogger 設置日誌記錄器
func WithStreamLogger[T any](logger *slog.Logger) StreamOption[T] {
	return func(o *streamOptions[T]) {
		o.logger = logger
	}
}

// WithStreamBufferSize 設置緩衝大小
func WithStreamBufferSize[T any](size int) StreamOption[T] {
	return func(o *streamOptions[T]) {
		o.bufferSize = size
	}
}

// WithStreamParseToFunc 設置訊息序列化函數
func WithStreamParseToFunc[T any](fn func(T) (map[string]any, error)) StreamOption[T] {
	return func(o *streamOptions[T]) {
		o.parseTo = fn
	}
}

// WithStreamParseFromFunc 設置訊息反序列化函數
func WithStreamParseFromFunc[T any](fn func(map[string]any) (T, error)) StreamOption[T] {
	return func(o *streamOptions[T]) {
		o.parseFrom = fn
	}
}

// Stream 是redis stream上的雙向訊息流。
// Publish 將訊息寫入stream；Subscribe 回傳的通道會收到stream上所有「新」訊息
// (從啟動當下開始，不回放歷史)。每個節點各自讀取同一條stream，
// 因此同一訊息會被每個節點各收到一次，符合對即時訂閱者at-least-once的遞送模型。
type Stream[T any] struct {
	client     *redis.Client
	stream     string
	lastID     string
	downstream chan T
	upstream   *chanx.UnboundedChan[map[string]any]
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    streamOptions[T]
}

// NewStream 建立一個新的訊息流
func NewStream[T any](client *redis.Client, stream string, opts ...StreamOption[T]) (*Stream[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := streamOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		parseTo:      DefaultParseToMessage[T],
		parseFrom:    DefaultParseFromMessage[T],
		readBlock:    time.Second,
		errorBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Stream[T]{
		client:     client,
		stream:     stream,
		lastID:     "$", // 只讀取最新的消息
		downstream: make(chan T, options.bufferSize),
		upstream:   chanx.NewUnboundedChan[map[string]any](ctx, options.bufferSize),
		ctx:        ctx,
		cancelFunc: cancel,
		logger:     options.logger.With(slog.String("caller", "Stream"), slog.String("stream", stream)),
		options:    options,
	}, nil
}

// Start 啟動讀取與寫入的goroutine
func (s *Stream[T]) Start() {
	s.logger.Info("starting event stream")

	// 讀取端：把stream上的新訊息轉發到downstream
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("stream reader stopped")

		for {
			select {
			case <-s.ctx.Done():
				return
			default:
				streams, err := s.client.XRead(s.ctx, &redis.XReadArgs{
					Streams: []string{s.stream, s.lastID},
					Count:   10,
					Block:   s.options.readBlock,
				}).Result()

				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					s.logger.Error("error reading from stream", slog.Any("error", err))
					time.Sleep(s.options.errorBackoff)
					continue
				}

				for _, stream := range streams {
					for _, message := range stream.Messages {
						s.lastID = message.ID
						data, err := s.options.parseFrom(message.Values)
						if err != nil {
							s.logger.Error("unmarshal error",
								slog.String("messageId", message.ID),
								slog.Any("error", err))
							continue
						}
						select {
						case <-s.ctx.Done():
							return
						case s.downstream <- data:
						}
					}
				}
			}
		}
	}()

	// 寫入端：把upstream的訊息XADD進stream
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("stream writer stopped")

		for {
			select {
			case <-s.ctx.Done():
				return
			case message := <-s.upstream.Out:
				id, err := s.client.XAdd(s.ctx, &redis.XAddArgs{
					Stream: s.stream,
					Values: message,
				}).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					s.logger.Error("publish message error", slog.Any("error", err))
					continue
				}
				s.logger.Debug("message published", slog.String("messageId", id))
			}
		}
	}()
}

// Subscribe 訂閱數據流
func (s *Stream[T]) Subscribe() <-chan T {
	return s.downstream
}

// Publish 發布數據到stream，如果訊息流已關閉則返回錯誤
func (s *Stream[T]) Publish(data T) error {
	if s.closed {
		return ErrStreamClosed
	}

	message, err := s.options.parseTo(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}

	select {
	case s.upstream.In <- message:
		return nil
	case <-s.ctx.Done():
		return ErrStreamClosed
	}
}

// Close 關閉訊息流
func (s *Stream[T]) Close() {
	if s.closed {
		return
	}
	s.logger.Info("closing event stream")
	s.closed = true
	s.cancelFunc()
	s.wg.Wait()
	close(s.downstream)
	s.logger.Info("event stream closed")
}
