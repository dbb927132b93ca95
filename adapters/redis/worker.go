package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message 封裝訊息和確認所需的資料
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	raw map[string]any
}

// Done 確認訊息已處理完成
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 把訊息移進 dead-letter stream 並確認原訊息
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	m.raw["error"] = failErr.Error()
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + ":dead-letter",
		Values: sortedFields(m.raw),
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

type groupWorkerOptions[T any] struct {
	logger         *slog.Logger
	decodeFunc     func(map[string]any) (T, error)
	bufferSize     int
	blockTimeout   time.Duration
	mutex          IAutoRenewMutex
	strictOrdering bool // 嚴格順序模式
}

type GroupWorkerOption[T any] func(*groupWorkerOptions[T])

// WithGroupWorkerLogger 設置日誌記錄器
func WithGroupWorkerLogger[T any](logger *slog.Logger) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.logger = logger
	}
}

// WithGroupWorkerDecodeFunc 設置訊息解析函數
func WithGroupWorkerDecodeFunc[T any](fn func(map[string]any) (T, error)) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.decodeFunc = fn
	}
}

// WithGroupWorkerBufferSize 設置下游 channel 的緩衝大小
func WithGroupWorkerBufferSize[T any](size int) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.bufferSize = size
	}
}

// WithGroupWorkerBlockTimeout 設置阻塞讀取超時時間
func WithGroupWorkerBlockTimeout[T any](d time.Duration) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.blockTimeout = d
	}
}

// WithGroupWorkerMutex 注入 mutex (主要用於測試)
func WithGroupWorkerMutex[T any](mutex IAutoRenewMutex) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.mutex = mutex
	}
}

// WithGroupWorkerStrictOrdering 設置是否使用嚴格順序模式
// 嚴格順序模式下同一時間只有一個 worker 在處理，並且會優先補完 pending 訊息
func WithGroupWorkerStrictOrdering[T any](strict bool) GroupWorkerOption[T] {
	return func(o *groupWorkerOptions[T]) {
		o.strictOrdering = strict
	}
}

// GroupWorker 以 consumer group 的方式分攤處理 stream 訊息
// 下游拿到的是 *Message[T]，處理完要呼叫 Done 或 Fail
type GroupWorker[T any] struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	downStream    chan *Message[T]
	cancelFunc    context.CancelFunc
	wg            sync.WaitGroup
	closed        bool
	logger        *slog.Logger
	mutex         IAutoRenewMutex
	pendingMsgIds []string
	options       groupWorkerOptions[T]
}

func NewGroupWorker[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupWorkerOption[T],
) (IGroupWorker[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	// 默認選項
	options := groupWorkerOptions[T]{
		logger:         slog.Default(),
		decodeFunc:     DecodeMessage[T],
		bufferSize:     1,
		blockTimeout:   time.Second,
		strictOrdering: false,
	}

	// 應用自定義選項
	for _, opt := range opts {
		opt(&options)
	}

	gw := &GroupWorker[T]{
		logger:   options.logger.With(slog.String("caller", "GroupWorker"), slog.String("stream", stream), slog.String("group", group), slog.String("consumer", consumer)),
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		options:  options,
	}

	// 只在嚴格順序模式下需要鎖
	if options.strictOrdering {
		if options.mutex != nil {
			gw.mutex = options.mutex
		} else {
			gw.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group), WithAutoRenewMutexSkipLockError(true))
		}
	}

	return gw, nil
}

func (s *GroupWorker[T]) Start() error {
	if !s.closed {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Message[T], s.options.bufferSize)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group worker")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group worker goroutine stopped")
		defer close(s.downStream)
		defer func() {
			if s.options.strictOrdering {
				s.mutex.Unlock()
			}
		}()

		for {
			workloadContext := ctx

			// 嚴格順序模式下會先拿鎖，再處理訊息
			if s.options.strictOrdering {
				var err error
				// workloadContext 在嚴格順序模式下是帶鎖狀態的 child context，能接收到鎖釋放的信號
				workloadContext, err = s.mutex.Lock(ctx)
				if err != nil {
					s.logger.Error("failed to acquire lock", slog.Any("error", err))
					if errors.Is(err, context.Canceled) {
						break
					}
					continue
				}
			}
			if err := s.messagesWorkflow(workloadContext); err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					break
				}
				if s.options.strictOrdering && errors.Is(err, context.Canceled) && ctx.Err() == nil {
					// 鎖的 context 被取消，重新搶鎖後繼續
					s.logger.Error("lock context cancelled, stopping current processing, restarting group worker")
				} else {
					s.logger.Error("error processing messages, stopping current processing, restarting group worker", slog.Any("error", err))
				}
				continue
			}
		}
	}()

	return nil
}

// Subscribe 訂閱 stream，返回 Message 通道
func (s *GroupWorker[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupWorker[T]) Close() error {
	if s.closed {
		return nil
	}
	s.logger.Info("closing group worker")
	s.closed = true
	s.cancelFunc()

	s.wg.Wait()
	s.logger.Info("group worker closed gracefully")
	return nil
}

// messagesWorkflow 處理訊息的工作流程
func (s *GroupWorker[T]) messagesWorkflow(ctx context.Context) error {
	if s.options.strictOrdering {
		if err := s.fetchPendingMessageIds(ctx); err != nil {
			s.logger.Error("initial pending messages fetch failed", slog.Any("error", err))
			return err
		}
	}
	for {
		message, err := s.fetchNextMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.logger.Error("fetch message error", slog.Any("error", err))
			if errors.Is(err, context.Canceled) {
				return err
			}
			// 其他錯誤通常是和 Redis 之間的通訊異常，重試即可
			continue
		}
		data, err := s.options.decodeFunc(message.Values)
		if err != nil {
			// 解析失敗不會因為重試而成功，直接送進 dead-letter 繼續處理下一條
			s.logger.Error("failed to decode message",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			if deadLetterErr := s.moveToDeadLetter(ctx, message); deadLetterErr != nil {
				s.logger.Error("error moving message to dead letter",
					slog.String("messageId", message.ID),
					slog.Any("error", deadLetterErr),
				)
				// 移動失敗時訊息會以 pending 的形式留在 stream
				// 嚴格順序模式下會在下一輪開始時優先處理
				return deadLetterErr
			}
			continue
		}
		msg := &Message[T]{
			Data:      data,
			messageID: message.ID,
			stream:    s.stream,
			group:     s.group,
			client:    s.client,
			raw:       message.Values,
		}
		if err := s.moveToDownStream(ctx, msg); err != nil {
			s.logger.Error("error moving message to downstream",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			return err
		}
	}
}

func (s *GroupWorker[T]) fetchPendingMessageIds(ctx context.Context) error {
	const pageSize = 100
	s.pendingMsgIds = make([]string, 0, pageSize)
	lastId := "-"

	for {
		pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: s.stream,
			Group:  s.group,
			Start:  lastId,
			End:    "+",
			Count:  pageSize,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("error getting pending messages: %w", err)
		}

		if len(pending) == 0 {
			break
		}
		for _, p := range pending {
			s.pendingMsgIds = append(s.pendingMsgIds, p.ID)
		}
		lastId = pending[len(pending)-1].ID
		if len(pending) < pageSize {
			break
		}
	}

	s.logger.Info("fetched all pending message IDs", slog.Int("count", len(s.pendingMsgIds)))
	return nil
}

func (s *GroupWorker[T]) fetchNextMessage(ctx context.Context) (redis.XMessage, error) {
	var message redis.XMessage

	if len(s.pendingMsgIds) > 0 {
		// 先補完 pending 訊息
		id := s.pendingMsgIds[0]
		s.pendingMsgIds = s.pendingMsgIds[1:]
		messages, err := s.client.XRangeN(ctx, s.stream, id, id, 1).Result()
		if err != nil {
			return message, err
		}
		if len(messages) == 0 {
			// 本體已被 stream 修剪的 pending 訊息補不回來，確認掉換下一條
			if ackErr := s.client.XAck(ctx, s.stream, s.group, id).Err(); ackErr != nil {
				s.logger.Error("failed to ack trimmed pending message",
					slog.String("messageId", id),
					slog.Any("error", ackErr),
				)
			}
			return message, redis.Nil
		}
		return messages[0], nil
	}

	// 讀取新訊息
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    1,
		Block:    s.options.blockTimeout,
	}).Result()
	if len(streams) > 0 && len(streams[0].Messages) > 0 {
		message = streams[0].Messages[0]
	}
	return message, err
}

// sortedFields 把 map 攤平成固定順序的欄位序列，讓寫入內容可預期
func sortedFields(values map[string]any) []any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]any, 0, len(values)*2)
	for _, k := range keys {
		fields = append(fields, k, values[k])
	}
	return fields
}

func (s *GroupWorker[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + ":dead-letter",
		Values: sortedFields(message.Values),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}
	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

func (s *GroupWorker[T]) moveToDownStream(ctx context.Context, message *Message[T]) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case s.downStream <- message:
		return nil
	}
}
