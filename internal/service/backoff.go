package service

import (
	"errors"
	"time"

	"lime/internal/config"
	"lime/internal/model/pipeline"
)

// backoffPolicy 重试退避策略
// 延迟按倍数增长并封顶；平台要求的等待时间（RetryAfter）优先生效
type backoffPolicy struct {
	initial    time.Duration
	multiplier float64
	max        time.Duration
}

func newBackoffPolicy(cfg *config.PipelineConfig) backoffPolicy {
	p := backoffPolicy{
		initial:    cfg.BackoffInitial,
		multiplier: cfg.BackoffMultiplier,
		max:        cfg.BackoffMax,
	}
	if p.initial <= 0 {
		p.initial = 500 * time.Millisecond
	}
	if p.multiplier < 1 {
		p.multiplier = 2
	}
	if p.max <= 0 {
		p.max = 30 * time.Second
	}
	return p
}

// Delay 计算第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (p backoffPolicy) Delay(attempt int, err error) time.Duration {
	d := p.initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * p.multiplier)
		if d >= p.max {
			d = p.max
			break
		}
	}
	if d > p.max {
		d = p.max
	}

	var ue *pipeline.UploadError
	if errors.As(err, &ue) && ue.RetryAfter > d {
		d = ue.RetryAfter
	}
	return d
}
