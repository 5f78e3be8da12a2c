package service

import (
	"golang.org/x/sync/errgroup"
)

// WorkerPool 批次内共享的有界并发池，提交、状态查询和下载共用同一组槽位
type WorkerPool struct {
	workers chan struct{}
}

// NewWorkerPool 创建并发池，size 小于 1 时按 1 处理
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{workers: make(chan struct{}, size)}
}

// Size 返回最大并发数
func (p *WorkerPool) Size() int {
	return cap(p.workers)
}

// Each 对 0..n-1 逐个调用 fn，并发数不超过池大小，全部完成后返回。
// 每一项都会被执行，单项失败由 fn 自行记录，不影响其他项。
func (p *WorkerPool) Each(n int, fn func(i int)) {
	var g errgroup.Group
	for i := 0; i < n; i++ {
		p.workers <- struct{}{} // 获取槽位
		g.Go(func() error {
			defer func() { <-p.workers }() // 释放槽位
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
