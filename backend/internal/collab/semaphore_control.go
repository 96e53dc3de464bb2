package collab

import (
	"context"
	"errors"
)

var (
	ErrAcquireTimeout = errors.New("semaphore acquire: context done")
	ErrNotAcquired    = errors.New("semaphore release: not acquired")
)

// SemaphoreControl 限制同时进行中的 Kafka 发送数
type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(limit int) *SemaphoreControl {
	if limit <= 0 {
		limit = 100
	}
	return &SemaphoreControl{ch: make(chan struct{}, limit)}
}

func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrAcquireTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrNotAcquired
	}
}

func (s *SemaphoreControl) InUse() int { return len(s.ch) }
