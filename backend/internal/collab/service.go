package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"docSyncServer/backend/internal/entity"
	"docSyncServer/backend/internal/metrics"
)

// Authorizer 分享权限判定（share.Gate）
type Authorizer interface {
	Authorize(ctx context.Context, docID string, userID uint64, required entity.Permission) (bool, error)
}

// VersionCommitter 版本日志（version.Service）
type VersionCommitter interface {
	Append(ctx context.Context, docID string, content string, editedBy uint64, description string) (entity.Version, error)
	Latest(ctx context.Context, docID string) (entity.Version, bool, error)
	Target(ctx context.Context, docID string, versionID uint64) (entity.Version, error)
	Revert(ctx context.Context, docID string, versionID uint64) (entity.Version, error)
}

const EditDescription = "Document updated"

// EditResult Version 为 nil 时 Warning 说明为什么没有记录版本
type EditResult struct {
	State   entity.DocumentState `json:"state"`
	Version *entity.Version      `json:"version,omitempty"`
	Warning string               `json:"warning,omitempty"`
}

type Options struct {
	SubscriberBuffer int
	// 可选，nil 时不发事件
	Events EventSink
	Log    *zap.Logger
	Now    func() time.Time
}

// docState 单个文档的权威状态和订阅者
//
// 锁顺序：stateMu -> commitMu -> subMu。
// 编辑在 stateMu 内改状态，释放 stateMu 之前先拿到 commitMu，
// 所以广播顺序、版本号顺序都和应用顺序一致，而订阅者扇出和追加版本都不占用 stateMu。
type docState struct {
	id string

	stateMu sync.Mutex
	loaded  bool
	state   entity.DocumentState

	commitMu sync.Mutex

	subMu         sync.Mutex
	subs          map[*Subscription]struct{}
	lastPublished entity.DocumentState

	// 订阅者数 + 进行中的编辑数；只在 Service.mu 读锁下增加、写锁下减少
	refs atomic.Int64
	// 状态已经前进但最近一次版本追加失败
	diverged atomic.Bool
}

// Service 同步广播器：接收编辑、扇出给订阅者、写入版本日志
type Service struct {
	mu   sync.RWMutex
	docs map[string]*docState

	gate     Authorizer
	versions VersionCommitter
	events   EventSink
	log      *zap.Logger
	bufSize  int
	now      func() time.Time
}

func NewService(gate Authorizer, versions VersionCommitter, opt Options) *Service {
	if opt.Log == nil {
		opt.Log = zap.NewNop()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.SubscriberBuffer <= 0 {
		opt.SubscriberBuffer = DefaultSubscriberBuffer
	}
	return &Service{
		docs:     make(map[string]*docState),
		gate:     gate,
		versions: versions,
		events:   opt.Events,
		log:      opt.Log,
		bufSize:  opt.SubscriberBuffer,
		now:      opt.Now,
	}
}

// acquire 获取或创建指定文档的状态，并占用一个引用
func (s *Service) acquire(docID string) *docState {
	s.mu.RLock()
	ds := s.docs[docID]
	if ds != nil {
		ds.refs.Add(1)
	}
	s.mu.RUnlock()
	if ds != nil {
		return ds
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds = s.docs[docID]; ds == nil {
		ds = &docState{
			id:   docID,
			subs: make(map[*Subscription]struct{}),
		}
		s.docs[docID] = ds
	}
	ds.refs.Add(1)
	return ds
}

// release 引用归零且状态和历史一致时回收
func (s *Service) release(ds *docState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ds.refs.Add(-1) == 0 && !ds.diverged.Load() && s.docs[ds.id] == ds {
		delete(s.docs, ds.id)
	}
}

// ensureLoaded 调用方持有 ds.stateMu
func (s *Service) ensureLoaded(ctx context.Context, ds *docState) error {
	if ds.loaded {
		return nil
	}
	v, ok, err := s.versions.Latest(ctx, ds.id)
	if err != nil {
		return err
	}
	if ok {
		ds.state = entity.StateFromVersion(v)
	} else {
		ds.state = entity.DocumentState{DocID: ds.id}
	}
	ds.loaded = true
	ds.subMu.Lock()
	ds.lastPublished = ds.state
	ds.subMu.Unlock()
	return nil
}

// Load 返回文档当前的权威状态
func (s *Service) Load(ctx context.Context, docID string) (entity.DocumentState, error) {
	if docID == "" {
		return entity.DocumentState{}, fmt.Errorf("%w: missing documentId", entity.ErrInvalidArgument)
	}
	ds := s.acquire(docID)
	defer s.release(ds)
	ds.stateMu.Lock()
	defer ds.stateMu.Unlock()
	if err := s.ensureLoaded(ctx, ds); err != nil {
		return entity.DocumentState{}, err
	}
	return ds.state, nil
}

// Subscribe 注册订阅者；ctx 结束或调用 Close 时注销
func (s *Service) Subscribe(ctx context.Context, docID string) (*Subscription, error) {
	if docID == "" {
		return nil, fmt.Errorf("%w: missing documentId", entity.ErrInvalidArgument)
	}
	ds := s.acquire(docID)
	ds.stateMu.Lock()
	err := s.ensureLoaded(ctx, ds)
	ds.stateMu.Unlock()
	if err != nil {
		s.release(ds)
		return nil, err
	}

	sub := newSubscription(docID, s.bufSize)
	sub.onClose = func() {
		ds.subMu.Lock()
		delete(ds.subs, sub)
		ds.subMu.Unlock()
		metrics.ActiveSubscribers.Dec()
		s.release(ds)
	}

	ds.subMu.Lock()
	ds.subs[sub] = struct{}{}
	sub.deliver(ds.lastPublished)
	ds.subMu.Unlock()
	metrics.ActiveSubscribers.Inc()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

// Edit 整篇替换（后写覆盖），没有 edit 权限时返回 ErrPermissionDenied 且不产生任何副作用
func (s *Service) Edit(ctx context.Context, docID string, authorID uint64, content string) (EditResult, error) {
	if err := s.authorize(ctx, docID, authorID); err != nil {
		return EditResult{}, err
	}
	commit := func(ctx context.Context) (entity.Version, error) {
		return s.versions.Append(ctx, docID, content, authorID, EditDescription)
	}
	return s.apply(ctx, docID, authorID, content, EventDocumentEdited, commit)
}

// Revert 把目标版本的内容重新应用到实时状态，并追加一条回滚版本
func (s *Service) Revert(ctx context.Context, docID string, versionID uint64, requesterID uint64) (EditResult, error) {
	if err := s.authorize(ctx, docID, requesterID); err != nil {
		return EditResult{}, err
	}
	target, err := s.versions.Target(ctx, docID, versionID)
	if err != nil {
		return EditResult{}, err
	}
	commit := func(ctx context.Context) (entity.Version, error) {
		return s.versions.Revert(ctx, docID, versionID)
	}
	s.log.Info("document_revert",
		zap.String("doc", docID),
		zap.Uint64("target", versionID),
		zap.Uint64("requester", requesterID))
	return s.apply(ctx, docID, target.EditedByUserID, target.Content, EventDocumentReverted, commit)
}

// Record 以指定作者和描述记录一次整篇内容，与 Edit 走同一条应用/广播/提交路径
// requesterID 需要 edit 权限；editorID 为 0 时记为 requesterID
func (s *Service) Record(ctx context.Context, docID string, requesterID, editorID uint64, content, description string) (EditResult, error) {
	if err := s.authorize(ctx, docID, requesterID); err != nil {
		return EditResult{}, err
	}
	if editorID == 0 {
		editorID = requesterID
	}
	if description == "" {
		description = EditDescription
	}
	commit := func(ctx context.Context) (entity.Version, error) {
		return s.versions.Append(ctx, docID, content, editorID, description)
	}
	return s.apply(ctx, docID, editorID, content, EventDocumentEdited, commit)
}

func (s *Service) authorize(ctx context.Context, docID string, userID uint64) error {
	if docID == "" {
		return fmt.Errorf("%w: missing documentId", entity.ErrInvalidArgument)
	}
	ok, err := s.gate.Authorize(ctx, docID, userID, entity.PermissionEdit)
	if err != nil {
		return err
	}
	if !ok {
		metrics.EditsDenied.Inc()
		return fmt.Errorf("user %d cannot edit document %s: %w", userID, docID, entity.ErrPermissionDenied)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, docID string, editorID uint64, content string, eventType string,
	commit func(context.Context) (entity.Version, error)) (EditResult, error) {
	ds := s.acquire(docID)
	defer s.release(ds)

	ds.stateMu.Lock()
	if err := s.ensureLoaded(ctx, ds); err != nil {
		ds.stateMu.Unlock()
		return EditResult{}, err
	}
	ds.state.Content = content
	ds.state.LastEditorID = editorID
	ds.state.LastUpdated = s.now()
	snapshot := ds.state
	// 释放 stateMu 之前先拿 commitMu，保证后续编辑按同样顺序广播和追加
	ds.commitMu.Lock()
	ds.stateMu.Unlock()
	defer ds.commitMu.Unlock()

	metrics.EditsAccepted.Inc()
	s.publish(ds, snapshot)

	// 已经广播，客户端断开也要把版本写完
	v, err := commit(context.WithoutCancel(ctx))
	res := EditResult{State: snapshot}
	if err != nil {
		ds.diverged.Store(true)
		metrics.VersionAppendFailures.Inc()
		res.Warning = "version not recorded: " + describe(err)
		s.log.Error("version_commit_failed",
			zap.String("doc", docID),
			zap.Uint64("editor", editorID),
			zap.Error(err))
	} else {
		ds.diverged.Store(false)
		res.Version = &v
	}
	s.emit(eventType, snapshot, res.Version)
	return res, nil
}

func (s *Service) publish(ds *docState, st entity.DocumentState) {
	ds.subMu.Lock()
	defer ds.subMu.Unlock()
	ds.lastPublished = st
	for sub := range ds.subs {
		sub.deliver(st)
	}
}

// emit 调用方持有 commitMu，同一文档的事件按提交顺序入队
func (s *Service) emit(eventType string, st entity.DocumentState, v *entity.Version) {
	if s.events == nil {
		return
	}
	evt := newEvent(eventType, st.DocID, st.LastEditorID, st.LastUpdated)
	evt.ContentLength = len(st.Content)
	if v != nil {
		evt.VersionID = v.ID
		evt.VersionNumber = v.VersionNumber
	}
	s.events.TryEnqueue(evt)
	if v == nil {
		return
	}
	committed := newEvent(EventVersionCommitted, v.DocumentID, v.EditedByUserID, v.Timestamp)
	committed.VersionID = v.ID
	committed.VersionNumber = v.VersionNumber
	committed.ContentLength = len(v.Content)
	s.events.TryEnqueue(committed)
}

// Diverged 最近一次版本追加失败、实时状态领先于历史
func (s *Service) Diverged(docID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds := s.docs[docID]
	return ds != nil && ds.diverged.Load()
}

// SubscriberCount 当前订阅者数，用于在线状态展示
func (s *Service) SubscriberCount(docID string) int {
	s.mu.RLock()
	ds := s.docs[docID]
	s.mu.RUnlock()
	if ds == nil {
		return 0
	}
	ds.subMu.Lock()
	defer ds.subMu.Unlock()
	return len(ds.subs)
}

func describe(err error) string {
	if errors.Is(err, entity.ErrStoreUnavailable) {
		return "version store unavailable"
	}
	return err.Error()
}
