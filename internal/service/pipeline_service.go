package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lime/internal/config"
	"lime/internal/model/pipeline"
	"lime/internal/pkg/governor"
	"lime/internal/pkg/id"
	repo "lime/internal/repository/pipeline"
)

const (
	cancelledKind   = "cancelled"
	cancelledReason = "Cancelled"
)

// PipelineService 批次生产编排器
// 负责批次的接收、条目的阶段推进、有界重试与退避、取消与恢复
// 各阶段适配器只做单次执行，所有重试与并发控制集中在这里
type PipelineService interface {
	// SubmitBatch 提交一批话题，立即返回批次ID，生产在后台进行
	SubmitBatch(ctx context.Context, topics []string) (string, error)
	// PollProgress 查询批次聚合进度
	PollProgress(ctx context.Context, batchID string) (*pipeline.Progress, error)
	// CancelBatch 取消批次（幂等），未终态条目标记为失败
	CancelBatch(ctx context.Context, batchID string) error
	// BatchReport 返回批次全部条目的最终/当前状态
	BatchReport(ctx context.Context, batchID string) (*pipeline.Batch, []*pipeline.ContentItem, error)
	// WaitBatch 阻塞直到批次全部条目到达终态
	WaitBatch(ctx context.Context, batchID string) error
	// Resume 恢复落库的未完成批次（进程重启后调用）
	Resume(ctx context.Context) error
	// Stop 停止编排器，取消所有在途批次的后台任务
	Stop()
}

type pipelineService struct {
	cfg     *config.PipelineConfig
	script  ScriptService
	render  RenderService
	upload  UploadService
	gov     *governor.Governor
	items   repo.ItemRepository
	batches repo.BatchRepository
	backoff backoffPolicy

	scriptSem chan struct{}
	uploadSem chan struct{}

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.RWMutex
	states map[string]*batchState
}

// batchState 批次的内存态
// items 中的指针是条目的权威内存副本，所有修改都在 mu 保护下进行
type batchState struct {
	batch  *pipeline.Batch
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	items map[string]*pipeline.ContentItem
}

// NewPipelineService 创建批次生产编排器
func NewPipelineService(
	cfg *config.PipelineConfig,
	script ScriptService,
	render RenderService,
	upload UploadService,
	items repo.ItemRepository,
	batches repo.BatchRepository,
) PipelineService {
	capacity := cfg.RenderCapacity
	if capacity <= 0 {
		capacity = 1
	}
	scriptConc := cfg.ScriptConcurrency
	if scriptConc <= 0 {
		scriptConc = 4
	}
	uploadConc := cfg.UploadConcurrency
	if uploadConc <= 0 {
		uploadConc = 2
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &pipelineService{
		cfg:        cfg,
		script:     script,
		render:     render,
		upload:     upload,
		gov:        governor.New(capacity),
		items:      items,
		batches:    batches,
		backoff:    newBackoffPolicy(cfg),
		scriptSem:  make(chan struct{}, scriptConc),
		uploadSem:  make(chan struct{}, uploadConc),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		states:     make(map[string]*batchState),
	}
}

// SubmitBatch 校验话题列表并启动批次生产
// 空批次或超过上限返回 InvalidBatchError，批次之间互不影响
func (s *pipelineService) SubmitBatch(ctx context.Context, topics []string) (string, error) {
	if len(topics) == 0 {
		return "", &pipeline.InvalidBatchError{Reason: "话题列表为空"}
	}
	if s.cfg.MaxBatchSize > 0 && len(topics) > s.cfg.MaxBatchSize {
		return "", &pipeline.InvalidBatchError{
			Reason: fmt.Sprintf("话题数 %d 超过单批次上限 %d", len(topics), s.cfg.MaxBatchSize),
		}
	}
	for i, topic := range topics {
		if strings.TrimSpace(topic) == "" {
			return "", &pipeline.InvalidBatchError{Reason: fmt.Sprintf("第 %d 个话题为空", i+1)}
		}
	}

	now := time.Now()
	batch := &pipeline.Batch{
		ID:        id.New(),
		Status:    pipeline.BatchStatusRunning,
		Total:     len(topics),
		CreatedAt: now,
		UpdatedAt: now,
	}

	items := make([]*pipeline.ContentItem, 0, len(topics))
	for _, topic := range topics {
		items = append(items, &pipeline.ContentItem{
			ID:        id.New(),
			BatchID:   batch.ID,
			Topic:     strings.TrimSpace(topic),
			Stage:     pipeline.StageQueued,
			Attempts:  make(map[string]int),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.batches.Create(ctx, batch); err != nil {
		return "", fmt.Errorf("创建批次失败: %w", err)
	}
	if err := s.items.CreateMany(ctx, items); err != nil {
		return "", fmt.Errorf("创建批次条目失败: %w", err)
	}

	s.launch(batch, items)
	log.Info().Str("batch_id", batch.ID).Int("total", batch.Total).Msg("批次已提交")
	return batch.ID, nil
}

// launch 建立批次内存态并为每个条目启动独立的推进协程
func (s *pipelineService) launch(batch *pipeline.Batch, items []*pipeline.ContentItem) {
	batchCtx, cancel := context.WithCancel(s.rootCtx)
	st := &batchState{
		batch:  batch,
		ctx:    batchCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		items:  make(map[string]*pipeline.ContentItem, len(items)),
	}
	for _, item := range items {
		st.items[item.ID] = item
	}

	s.mu.Lock()
	s.states[batch.ID] = st
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, item := range items {
		if item.Terminal() {
			continue
		}
		wg.Add(1)
		go func(it *pipeline.ContentItem) {
			defer wg.Done()
			s.runItem(st, it)
		}(item)
	}

	go func() {
		wg.Wait()
		s.finishBatch(st)
		close(st.done)
	}()
}

// finishBatch 批次全部条目终态后的收尾
func (s *pipelineService) finishBatch(st *batchState) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := pipeline.BatchStatusCompleted
	if st.ctx.Err() != nil {
		status = pipeline.BatchStatusCancelled
	}
	if err := s.batches.UpdateStatus(ctx, st.batch.ID, status); err != nil {
		log.Error().Err(err).Str("batch_id", st.batch.ID).Msg("更新批次状态失败")
	}

	st.mu.Lock()
	st.batch.Status = status
	progress := progressOf(st.items)
	st.mu.Unlock()

	log.Info().Str("batch_id", st.batch.ID).Str("status", string(status)).
		Int("done", progress.Done).Int("failed", progress.Failed).Msg("批次结束")
}

// runItem 单条目推进循环：按阶段顺序执行，直到终态
func (s *pipelineService) runItem(st *batchState, item *pipeline.ContentItem) {
	for {
		st.mu.Lock()
		stage := item.Stage
		st.mu.Unlock()

		if stage.Terminal() {
			if stage == pipeline.StageFailed {
				s.render.Cleanup(item.ID)
			}
			return
		}
		if st.ctx.Err() != nil {
			s.markCancelled(st, item)
			return
		}

		switch stage {
		case pipeline.StageQueued:
			s.transition(st, item, pipeline.StageScripting, 0, "", "")
		case pipeline.StageScripting:
			s.runScripting(st, item)
		case pipeline.StageRendering:
			s.runRendering(st, item)
		case pipeline.StageUploading:
			s.runUploading(st, item)
		}
	}
}

func (s *pipelineService) runScripting(st *batchState, item *pipeline.ContentItem) {
	attempt := s.bumpAttempt(st, item, pipeline.StageScripting)

	select {
	case s.scriptSem <- struct{}{}:
	case <-st.ctx.Done():
		return
	}
	defer func() { <-s.scriptSem }()

	ctx, cancel := withOptionalTimeout(st.ctx, s.cfg.ScriptTimeout)
	defer cancel()

	script, err := s.script.Generate(ctx, item.Topic)
	if err != nil {
		s.handleFailure(st, item, pipeline.StageScripting, attempt, s.cfg.ScriptRetries, err)
		return
	}

	st.mu.Lock()
	item.Script = script
	st.mu.Unlock()
	s.transition(st, item, pipeline.StageRendering, attempt, "", "")
}

func (s *pipelineService) runRendering(st *batchState, item *pipeline.ContentItem) {
	attempt := s.bumpAttempt(st, item, pipeline.StageRendering)

	// 渲染槽位：等待超时视作一次普通失败，进入重试
	acquireCtx, acquireCancel := withOptionalTimeout(st.ctx, s.cfg.AcquireTimeout)
	lease, err := s.gov.Acquire(acquireCtx, 1)
	acquireCancel()
	if err != nil {
		s.handleFailure(st, item, pipeline.StageRendering, attempt, s.cfg.RenderRetries, err)
		return
	}
	defer lease.Release()

	st.mu.Lock()
	script := item.Script
	st.mu.Unlock()

	ctx, cancel := withOptionalTimeout(st.ctx, s.cfg.RenderTimeout)
	defer cancel()

	artifact, err := s.render.Render(ctx, &RenderInput{ItemID: item.ID, Script: script})
	if err != nil {
		s.handleFailure(st, item, pipeline.StageRendering, attempt, s.cfg.RenderRetries, err)
		return
	}

	st.mu.Lock()
	item.MediaPath = artifact.Path
	item.MediaDuration = artifact.Duration
	st.mu.Unlock()
	s.transition(st, item, pipeline.StageUploading, attempt, "", "")
}

func (s *pipelineService) runUploading(st *batchState, item *pipeline.ContentItem) {
	attempt := s.bumpAttempt(st, item, pipeline.StageUploading)

	select {
	case s.uploadSem <- struct{}{}:
	case <-st.ctx.Done():
		return
	}
	defer func() { <-s.uploadSem }()

	st.mu.Lock()
	req := &UploadRequest{
		ItemID:        item.ID,
		MediaPath:     item.MediaPath,
		PriorRemoteID: item.RemoteID,
		PriorURL:      item.PublishedURL,
	}
	if item.Script != nil {
		req.Title = item.Script.Title
		req.Description = item.Script.Description
		req.Tags = item.Script.Tags
	}
	st.mu.Unlock()

	ctx, cancel := withOptionalTimeout(st.ctx, s.cfg.UploadTimeout)
	defer cancel()

	outcome, err := s.upload.Upload(ctx, req)
	if err != nil {
		s.handleFailure(st, item, pipeline.StageUploading, attempt, s.cfg.UploadRetries, err)
		return
	}

	st.mu.Lock()
	if outcome.ArchiveURL != "" {
		item.ArchiveURL = outcome.ArchiveURL
	}
	item.RemoteID = outcome.RemoteID
	item.PublishedURL = outcome.PublishedURL
	st.mu.Unlock()

	if s.transition(st, item, pipeline.StageDone, attempt, "", "") {
		s.render.Cleanup(item.ID)
	}
}

// handleFailure 统一的阶段失败处理
// 不可重试的错误或重试耗尽 -> 终态 failed；否则退避后重新进入当前阶段
func (s *pipelineService) handleFailure(st *batchState, item *pipeline.ContentItem, stage pipeline.Stage, attempt, retries int, err error) {
	if st.ctx.Err() != nil {
		s.markCancelled(st, item)
		return
	}

	if !pipeline.Retryable(err) || attempt > retries {
		s.transition(st, item, pipeline.StageFailed, attempt, pipeline.FailureKind(err), err.Error())
		return
	}

	delay := s.backoff.Delay(attempt, err)
	log.Warn().Err(err).Str("item_id", item.ID).Str("stage", string(stage)).
		Int("attempt", attempt).Dur("backoff", delay).Msg("阶段执行失败，退避后重试")

	// 重试落库：记录一条同阶段转移，保留失败原因与尝试计数
	s.transition(st, item, stage, attempt, "", err.Error())

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-st.ctx.Done():
	}
}

// bumpAttempt 递增阶段尝试计数并返回当前次数
func (s *pipelineService) bumpAttempt(st *batchState, item *pipeline.ContentItem, stage pipeline.Stage) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if item.Attempts == nil {
		item.Attempts = make(map[string]int)
	}
	item.Attempts[string(stage)]++
	return item.Attempts[string(stage)]
}

// transition 执行一次阶段转移并落库
// 条目已终态时不做任何事（取消与正常推进竞争时保证只有一次终态转移）
func (s *pipelineService) transition(st *batchState, item *pipeline.ContentItem, to pipeline.Stage, attempt int, failKind, reason string) bool {
	now := time.Now()

	st.mu.Lock()
	if item.Stage.Terminal() {
		st.mu.Unlock()
		return false
	}
	from := item.Stage
	item.Stage = to
	item.UpdatedAt = now
	if to == pipeline.StageFailed {
		item.FailureKind = failKind
		item.FailureReason = reason
		item.CompletedAt = &now
	}
	if to == pipeline.StageDone {
		item.CompletedAt = &now
	}
	snapshot := *item
	snapshot.Attempts = make(map[string]int, len(item.Attempts))
	for k, v := range item.Attempts {
		snapshot.Attempts[k] = v
	}
	st.mu.Unlock()

	tr := &pipeline.StageTransition{
		ID:      id.New(),
		ItemID:  item.ID,
		BatchID: item.BatchID,
		From:    from,
		To:      to,
		Attempt: attempt,
		Reason:  reason,
		At:      now,
	}

	// 落库使用独立上下文：取消批次时终态也要持久化
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.items.Save(ctx, &snapshot, tr); err != nil {
		log.Error().Err(err).Str("item_id", item.ID).
			Str("from", string(from)).Str("to", string(to)).Msg("条目状态落库失败")
	}
	return true
}

// markCancelled 将条目标记为取消导致的失败（幂等）
func (s *pipelineService) markCancelled(st *batchState, item *pipeline.ContentItem) {
	if s.transition(st, item, pipeline.StageFailed, 0, cancelledKind, cancelledReason) {
		s.render.Cleanup(item.ID)
	}
}

// CancelBatch 取消批次
// 同步将所有未终态条目标记为失败，进度立即可见；在途动作随上下文取消尽快返回
func (s *pipelineService) CancelBatch(ctx context.Context, batchID string) error {
	s.mu.RLock()
	st, ok := s.states[batchID]
	s.mu.RUnlock()

	if !ok {
		return s.cancelPersisted(ctx, batchID)
	}

	st.cancel()

	st.mu.Lock()
	pending := make([]*pipeline.ContentItem, 0)
	for _, item := range st.items {
		if !item.Terminal() {
			pending = append(pending, item)
		}
	}
	st.mu.Unlock()

	for _, item := range pending {
		s.markCancelled(st, item)
	}

	if err := s.batches.UpdateStatus(ctx, batchID, pipeline.BatchStatusCancelled); err != nil {
		return fmt.Errorf("更新批次状态失败: %w", err)
	}
	st.mu.Lock()
	st.batch.Status = pipeline.BatchStatusCancelled
	st.mu.Unlock()

	log.Info().Str("batch_id", batchID).Int("cancelled_items", len(pending)).Msg("批次已取消")
	return nil
}

// cancelPersisted 取消不在内存中的批次（如重启后未恢复的批次）
func (s *pipelineService) cancelPersisted(ctx context.Context, batchID string) error {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != pipeline.BatchStatusRunning {
		return nil
	}

	items, err := s.items.ListNonTerminalByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, item := range items {
		from := item.Stage
		item.Stage = pipeline.StageFailed
		item.FailureKind = cancelledKind
		item.FailureReason = cancelledReason
		item.UpdatedAt = now
		item.CompletedAt = &now
		tr := &pipeline.StageTransition{
			ID:      id.New(),
			ItemID:  item.ID,
			BatchID: batchID,
			From:    from,
			To:      pipeline.StageFailed,
			Reason:  cancelledReason,
			At:      now,
		}
		if err := s.items.Save(ctx, item, tr); err != nil {
			return fmt.Errorf("取消条目失败: %w", err)
		}
	}
	return s.batches.UpdateStatus(ctx, batchID, pipeline.BatchStatusCancelled)
}

// PollProgress 查询批次聚合进度
func (s *pipelineService) PollProgress(ctx context.Context, batchID string) (*pipeline.Progress, error) {
	s.mu.RLock()
	st, ok := s.states[batchID]
	s.mu.RUnlock()

	if ok {
		st.mu.Lock()
		progress := progressOf(st.items)
		st.mu.Unlock()
		return &progress, nil
	}

	items, err := s.items.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if _, err := s.batches.FindByID(ctx, batchID); err != nil {
			return nil, err
		}
	}
	byID := make(map[string]*pipeline.ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	progress := progressOf(byID)
	return &progress, nil
}

// BatchReport 返回批次及其全部条目
func (s *pipelineService) BatchReport(ctx context.Context, batchID string) (*pipeline.Batch, []*pipeline.ContentItem, error) {
	batch, err := s.batches.FindByID(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.items.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

// WaitBatch 阻塞直到批次结束或上下文取消
func (s *pipelineService) WaitBatch(ctx context.Context, batchID string) error {
	s.mu.RLock()
	st, ok := s.states[batchID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("批次 %s 不在运行中", batchID)
	}

	select {
	case <-st.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume 恢复落库的 running 批次
// 条目从落库的阶段继续推进，尝试计数保留，不会重跑已终态条目
func (s *pipelineService) Resume(ctx context.Context) error {
	batches, err := s.batches.ListByStatus(ctx, pipeline.BatchStatusRunning)
	if err != nil {
		return fmt.Errorf("查询未完成批次失败: %w", err)
	}

	for _, batch := range batches {
		items, err := s.items.ListByBatch(ctx, batch.ID)
		if err != nil {
			return fmt.Errorf("加载批次 %s 条目失败: %w", batch.ID, err)
		}
		s.launch(batch, items)
		log.Info().Str("batch_id", batch.ID).Int("total", len(items)).Msg("恢复未完成批次")
	}
	return nil
}

// Stop 停止编排器
func (s *pipelineService) Stop() {
	s.rootCancel()
}

// progressOf 按阶段聚合条目计数
func progressOf(items map[string]*pipeline.ContentItem) pipeline.Progress {
	var p pipeline.Progress
	for _, item := range items {
		switch item.Stage {
		case pipeline.StageQueued:
			p.Queued++
		case pipeline.StageDone:
			p.Done++
		case pipeline.StageFailed:
			p.Failed++
		default:
			p.InFlight++
		}
	}
	return p
}

// withOptionalTimeout 超时为 0 时只派生可取消上下文
func withOptionalTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}
