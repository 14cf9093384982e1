package service

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fanout 对每个 owner 执行 fn，并发度不超过 limit
// 任一 owner 失败即整体失败；调用方依赖幂等写入整体重试
func fanout(ctx context.Context, limit int, owners []string, fn func(ctx context.Context, owner string) error) error {
	if len(owners) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 16
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, owner := range owners {
		g.Go(func() error { return fn(gctx, owner) })
	}
	return g.Wait()
}
