// Package backoff 实现行情源重连的指数退避。
// 基础间隔 500ms，最大间隔 30s，抖动 ±20%
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Backoff 指数退避计算器（非并发安全，每个行情源独占一个）
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// jitter 抖动比例（0-1）
	jitter float64
	// attempt 连续失败次数
	attempt int
}

// New 创建退避计算器
// 参数 base: 基础等待时间
// 参数 max: 最大等待时间
// 参数 jitter: 抖动比例，0.2 表示 ±20%
func New(base, max time.Duration, jitter float64) *Backoff {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &Backoff{base: base, max: max, jitter: jitter}
}

// NewDefault 创建默认配置的退避计算器
func NewDefault() *Backoff {
	return New(500*time.Millisecond, 30*time.Second, 0.2)
}

// Next 返回下一次重试前的等待时间：min(base*2^attempt, max) 再叠加抖动
func (b *Backoff) Next() time.Duration {
	delay := b.max
	// 位移超过 62 位会溢出，此时早已达到上限
	if b.attempt < 62 {
		if d := b.base << b.attempt; d > 0 && d < b.max {
			delay = d
		}
	}
	b.attempt++

	if b.jitter > 0 {
		factor := 1 + (rand.Float64()*2-1)*b.jitter
		delay = time.Duration(float64(delay) * factor)
	}
	return delay
}

// Wait 等待 Next() 给出的时间，ctx 取消时提前返回 ctx.Err()
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset 连接成功后重置
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt 返回连续失败次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
