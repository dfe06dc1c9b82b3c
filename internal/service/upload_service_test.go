package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/googleapi"

	"lime/internal/config"
	"lime/internal/model/pipeline"
	"lime/internal/pkg/storage"
	"lime/internal/pkg/youtube"
)

type memReceiptStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemReceiptStore() *memReceiptStore {
	return &memReceiptStore{data: make(map[string][]byte)}
}

func (s *memReceiptStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = b
	return nil
}

func (s *memReceiptStore) Get(_ context.Context, key string, dest any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data[key]
	if !ok {
		return errors.New("缓存未命中")
	}
	return json.Unmarshal(b, dest)
}

type fakePublisher struct {
	fn    func(ctx context.Context) (*youtube.PublishResult, error)
	calls atomic.Int32
}

func (p *fakePublisher) Publish(ctx context.Context, _, _, _ string, _ []string) (*youtube.PublishResult, error) {
	p.calls.Add(1)
	if p.fn != nil {
		return p.fn(ctx)
	}
	return &youtube.PublishResult{RemoteID: "abc123", PublishedURL: "https://youtube.com/shorts/abc123"}, nil
}

// memArchive 内存归档存储替身
type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads atomic.Int32
}

func newMemArchive() *memArchive {
	return &memArchive{objects: make(map[string][]byte)}
}

func (a *memArchive) Upload(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	a.uploads.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = b
	return "https://archive.test/" + key, nil
}

func (a *memArchive) Download(_ context.Context, key string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[key]
	if !ok {
		return nil, errors.New("归档不存在: " + key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (a *memArchive) GetPresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://archive.test/" + key + "?signed=1", nil
}

func (a *memArchive) Delete(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *memArchive) Exists(_ context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok, nil
}

func (a *memArchive) GetFileInfo(_ context.Context, key string) (*storage.FileInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.objects[key]
	if !ok {
		return nil, errors.New("归档不存在: " + key)
	}
	return &storage.FileInfo{Key: key, Size: int64(len(b)), ContentType: "video/mp4"}, nil
}

func (a *memArchive) GetStorageType() string { return "mem" }

func uploadCfg() *config.UploadConfig {
	return &config.UploadConfig{QuotaPerMinute: 6000, QuotaBurst: 100}
}

// TestUploadService_Idempotency 测试同一条目重复上传不产生第二次发布
func TestUploadService_Idempotency(t *testing.T) {
	Convey("重复上传同一条目返回已有回执", t, func() {
		pub := &fakePublisher{}
		svc, err := NewUploadService(pub, nil, newMemReceiptStore(), uploadCfg())
		So(err, ShouldBeNil)

		ctx := context.Background()
		req := &UploadRequest{ItemID: "item-1", MediaPath: "/tmp/item-1.mp4", Title: "标题"}

		first, err := svc.Upload(ctx, req)
		So(err, ShouldBeNil)
		So(first.RemoteID, ShouldEqual, "abc123")

		second, err := svc.Upload(ctx, req)
		So(err, ShouldBeNil)
		So(second.RemoteID, ShouldEqual, first.RemoteID)
		So(pub.calls.Load(), ShouldEqual, 1)
	})
}

// TestUploadService_PriorReceipt 测试条目落库状态作为发布回执
func TestUploadService_PriorReceipt(t *testing.T) {
	Convey("条目已记录 RemoteID 时不再发布", t, func() {
		pub := &fakePublisher{}
		svc, err := NewUploadService(pub, nil, nil, uploadCfg())
		So(err, ShouldBeNil)

		outcome, err := svc.Upload(context.Background(), &UploadRequest{
			ItemID:        "item-prior",
			MediaPath:     "/tmp/item-prior.mp4",
			PriorRemoteID: "vid-prior",
			PriorURL:      "https://youtube.com/shorts/vid-prior",
		})
		So(err, ShouldBeNil)
		So(outcome.RemoteID, ShouldEqual, "vid-prior")
		So(outcome.PublishedURL, ShouldEqual, "https://youtube.com/shorts/vid-prior")
		So(pub.calls.Load(), ShouldEqual, 0)
	})
}

// TestUploadService_ArchiveReuse 测试重试时复用已归档的成片
func TestUploadService_ArchiveReuse(t *testing.T) {
	Convey("上次尝试已归档的成片不重复上传", t, func() {
		archive := newMemArchive()
		cfg := uploadCfg()
		cfg.DryRun = true
		svc, err := NewUploadService(nil, archive, nil, cfg)
		So(err, ShouldBeNil)

		ctx := context.Background()
		_, err = archive.Upload(ctx, "shorts/item-re.mp4", bytes.NewReader([]byte("片段")), "video/mp4")
		So(err, ShouldBeNil)
		So(archive.uploads.Load(), ShouldEqual, 1)

		outcome, err := svc.Upload(ctx, &UploadRequest{ItemID: "item-re", MediaPath: "/nonexistent/item-re.mp4"})
		So(err, ShouldBeNil)
		So(archive.uploads.Load(), ShouldEqual, 1)
		So(outcome.ArchiveURL, ShouldEqual, "https://archive.test/shorts/item-re.mp4?signed=1")
	})
}

// TestUploadService_DryRun 测试 dry_run 模式只归档不发布
func TestUploadService_DryRun(t *testing.T) {
	Convey("dry_run 不调用发布客户端", t, func() {
		cfg := uploadCfg()
		cfg.DryRun = true
		pub := &fakePublisher{}
		svc, err := NewUploadService(pub, nil, newMemReceiptStore(), cfg)
		So(err, ShouldBeNil)

		outcome, err := svc.Upload(context.Background(), &UploadRequest{ItemID: "item-dry"})
		So(err, ShouldBeNil)
		So(outcome.RemoteID, ShouldEqual, "dry-item-dry")
		So(pub.calls.Load(), ShouldEqual, 0)
	})

	Convey("未配置发布客户端且未开启 dry_run 时报错", t, func() {
		_, err := NewUploadService(nil, nil, nil, uploadCfg())
		So(err, ShouldNotBeNil)
	})
}

// TestClassifyUploadError 测试平台错误分类
func TestClassifyUploadError(t *testing.T) {
	Convey("上传错误分类", t, func() {
		Convey("配额超限可重试且携带等待时间", func() {
			err := classifyUploadError(&googleapi.Error{
				Code:    403,
				Message: "quota exceeded",
				Errors:  []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
			})
			var ue *pipeline.UploadError
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Kind, ShouldEqual, pipeline.UploadQuotaExceeded)
			So(ue.Retryable(), ShouldBeTrue)
			So(ue.RetryAfter, ShouldBeGreaterThan, 0)
		})

		Convey("401/403 归为凭证失效", func() {
			err := classifyUploadError(&googleapi.Error{Code: 401, Message: "invalid credentials"})
			var ue *pipeline.UploadError
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Kind, ShouldEqual, pipeline.UploadAuthInvalid)
			So(ue.Retryable(), ShouldBeFalse)
		})

		Convey("400 归为内容被拒", func() {
			err := classifyUploadError(&googleapi.Error{Code: 400, Message: "invalid metadata"})
			var ue *pipeline.UploadError
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Kind, ShouldEqual, pipeline.UploadContentRejected)
		})

		Convey("5xx 与网络错误归为瞬时", func() {
			err := classifyUploadError(&googleapi.Error{Code: 503, Message: "backend error"})
			var ue *pipeline.UploadError
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Kind, ShouldEqual, pipeline.UploadTransient)

			err = classifyUploadError(errors.New("read tcp: connection reset by peer"))
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Kind, ShouldEqual, pipeline.UploadTransient)
		})
	})
}

// TestClassifyComposeError 测试渲染失败分类
func TestClassifyComposeError(t *testing.T) {
	Convey("渲染错误分类", t, func() {
		ctx := context.Background()

		Convey("内存不足", func() {
			err := classifyComposeError(ctx, errors.New("ffmpeg 失败: Cannot allocate memory"))
			var re *pipeline.RenderError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Kind, ShouldEqual, pipeline.RenderOutOfMemory)
			So(re.Retryable(), ShouldBeTrue)
		})

		Convey("素材不存在不可重试", func() {
			err := classifyComposeError(ctx, errors.New("bg.png: No such file or directory"))
			var re *pipeline.RenderError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Kind, ShouldEqual, pipeline.RenderAssetMissing)
			So(re.Retryable(), ShouldBeFalse)
		})

		Convey("其余归为编码失败", func() {
			err := classifyComposeError(ctx, errors.New("Error while encoding frame"))
			var re *pipeline.RenderError
			So(errors.As(err, &re), ShouldBeTrue)
			So(re.Kind, ShouldEqual, pipeline.RenderEncodeFailure)
		})
	})
}
