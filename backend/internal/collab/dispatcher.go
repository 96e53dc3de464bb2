package collab

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"docSyncServer/backend/internal/metrics"
)

// KafkaDispatcher 本地有界队列 + worker 异步发送 + 有限重试
// - 不阻塞编辑主流程（TryEnqueue 只负责入队）
// - Kafka 短暂不可用时靠队列吸收，后台慢慢补发
// - 队列满或重试用尽时丢弃事件，只记日志：事件投递允许静默失败
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan DocEvent
	wg     sync.WaitGroup

	// sem 限制并发的 SendMessage 数量
	sem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

var _ EventSink = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions, log *zap.Logger) *KafkaDispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 1024
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = 50 * time.Millisecond
	}
	if opt.MaxBackoff < opt.BaseBackoff {
		opt.MaxBackoff = opt.BaseBackoff
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		log:         log,
		queue:       make(chan DocEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// TryEnqueue 队列满时直接丢弃
func (d *KafkaDispatcher) TryEnqueue(evt DocEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- evt:
		return true
	default:
		metrics.EventsDispatched.WithLabelValues("dropped").Inc()
		d.log.Debug("event_queue_full", zap.String("doc", evt.DocID), zap.String("event", evt.EventType))
		return false
	}
}

// Close 停止接收新事件，等待队列里的事件发完
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt DocEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			// worker 允许一直等待（不会影响主链路）
			_ = d.sem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.sem != nil {
			_ = d.sem.Release()
		}

		if err == nil {
			metrics.EventsDispatched.WithLabelValues("sent").Inc()
			return
		}

		if attempt == d.maxRetry {
			metrics.EventsDispatched.WithLabelValues("failed").Inc()
			d.log.Warn("kafka_send_failed_drop_event",
				zap.String("doc", evt.DocID),
				zap.String("event", evt.EventType),
				zap.String("event_id", evt.EventID),
				zap.Int("worker", workerID),
				zap.Error(err))
			return
		}

		// 退避，每次退避时间X2
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt DocEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		// 以 docId 做 key，同一文档的事件落在同一分区
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
