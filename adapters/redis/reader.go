package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrClosed 代表對已關閉的發布端或讀取端進行操作
var ErrClosed = errors.New("stream endpoint is closed")

type readerOptions[T any] struct {
	logger       *slog.Logger
	bufferSize   int
	blockTimeout time.Duration
	decodeFunc   func(map[string]any) (T, error)
}

type ReaderOption[T any] func(*readerOptions[T])

// WithReaderLogger 設置日誌記錄器
func WithReaderLogger[T any](logger *slog.Logger) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.logger = logger
	}
}

// WithReaderBufferSize 設置下游 channel 的緩衝大小
func WithReaderBufferSize[T any](size int) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.bufferSize = size
	}
}

// WithReaderBlockTimeout 設置阻塞讀取的超時時間
func WithReaderBlockTimeout[T any](d time.Duration) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithReaderDecodeFunc 設置自定義解析函數
func WithReaderDecodeFunc[T any](fn func(map[string]any) (T, error)) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.decodeFunc = fn
	}
}

// Reader 從 stream 的尾端開始讀取新訊息並送到下游 channel
// 只讀不確認，每個 Reader 都會看到完整的訊息序列
type Reader[T any] struct {
	client     *redis.Client
	stream     string
	lastID     string
	downStream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	options    readerOptions[T]
}

func NewReader[T any](client *redis.Client, stream string, opts ...ReaderOption[T]) (IReader[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	// 默認選項
	options := readerOptions[T]{
		logger:       slog.Default(),
		bufferSize:   100,
		blockTimeout: time.Second,
		decodeFunc:   DecodeMessage[T],
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	return &Reader[T]{
		client:  client,
		stream:  stream,
		lastID:  "$",
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Reader"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (r *Reader[T]) Start() {
	if !r.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.downStream = make(chan T, r.options.bufferSize)
	r.closed = false
	r.cancelFunc = cancel
	r.logger.Info("starting stream reader")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.logger.Info("reader goroutine stopped")
		defer close(r.downStream)

		for {
			select {
			case <-ctx.Done():
				return
			default:
				message, err := r.fetchNextMessage(ctx)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					r.logger.Error("fetch message error", slog.Any("error", err))
					continue
				}

				data, err := r.options.decodeFunc(message.Values)
				if err != nil {
					r.logger.Error("failed to decode message",
						slog.String("messageId", message.ID),
						slog.Any("error", err))
					continue
				}

				select {
				case <-ctx.Done():
					return
				case r.downStream <- data:
				}
			}
		}
	}()
}

func (r *Reader[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	streams, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.stream, r.lastID},
		Count:   1,
		Block:   r.options.blockTimeout,
	}).Result()
	if err != nil {
		return redis.XMessage{}, err
	}

	if len(streams) > 0 && len(streams[0].Messages) > 0 {
		message := streams[0].Messages[0]
		r.lastID = message.ID
		return message, nil
	}
	return redis.XMessage{}, redis.Nil
}

// Subscribe 訂閱數據流
func (r *Reader[T]) Subscribe() <-chan T {
	return r.downStream
}

// Close 關閉讀取端
func (r *Reader[T]) Close() {
	if r.closed {
		return
	}
	r.logger.Info("closing stream reader")
	r.closed = true
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("stream reader closed")
}
