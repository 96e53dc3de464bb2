package collab

import (
	"sync"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/metrics"
)

const DefaultSubscriberBuffer = 32

// Subscription 单个订阅者的文档状态流
// 缓冲区满时丢弃最旧的一条，慢消费者不会阻塞发布方
type Subscription struct {
	docID string
	ch    chan entity.DocumentState
	done  chan struct{}

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	onClose   func()
}

func newSubscription(docID string, size int) *Subscription {
	if size <= 0 {
		size = DefaultSubscriberBuffer
	}
	return &Subscription{
		docID: docID,
		ch:    make(chan entity.DocumentState, size),
		done:  make(chan struct{}),
	}
}

func (s *Subscription) DocID() string { return s.docID }

// C 第一条是订阅时刻的当前状态；订阅关闭后 channel 被关闭
func (s *Subscription) C() <-chan entity.DocumentState { return s.ch }

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close 可重复调用
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
		close(s.done)
	})
}

// deliver 只有发布方调用；发送方唯一，所以最多丢一条就一定有空位
func (s *Subscription) deliver(st entity.DocumentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- st:
			return
		default:
		}
		select {
		case <-s.ch:
			metrics.SubscriberDrops.Inc()
		default:
		}
	}
}
