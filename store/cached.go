package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/internal/cache"
	"github.com/tideflow-io/tideflow/internal/metrics"
	"github.com/tideflow-io/tideflow/types"
)

// Cached wraps a Store with a Redis cache for workflow and graph snapshot
// reads. Every mutation invalidates the affected keys so readers never see
// anything older than the last successful write.
type Cached struct {
	inner     Store
	cache     *cache.Manager
	collector *metrics.Collector
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCached wraps inner with the given cache. collector may be nil.
func NewCached(inner Store, c *cache.Manager, collector *metrics.Collector, ttl time.Duration, logger *zap.Logger) *Cached {
	return &Cached{
		inner:     inner,
		cache:     c,
		collector: collector,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "store_cache")),
	}
}

func graphKey(workflowID string) string    { return "graph:" + workflowID }
func workflowKey(workflowID string) string { return "workflow:" + workflowID }

func (c *Cached) hit(cacheType string) {
	if c.collector != nil {
		c.collector.RecordCacheHit(cacheType)
	}
}

func (c *Cached) miss(cacheType string) {
	if c.collector != nil {
		c.collector.RecordCacheMiss(cacheType)
	}
}

// invalidate drops keys, logging failures. A failed invalidation only costs
// staleness up to the TTL.
func (c *Cached) invalidate(ctx context.Context, keys ...string) {
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *Cached) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	return c.inner.CreateWorkflow(ctx, wf)
}

func (c *Cached) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var wf types.Workflow
	if err := c.cache.GetJSON(ctx, workflowKey(id), &wf); err == nil {
		c.hit("workflow")
		return &wf, nil
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("workflow cache read failed", zap.String("id", id), zap.Error(err))
	}
	c.miss("workflow")

	got, err := c.inner.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, workflowKey(id), got, c.ttl); err != nil {
		c.logger.Warn("workflow cache write failed", zap.String("id", id), zap.Error(err))
	}
	return got, nil
}

func (c *Cached) ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error) {
	return c.inner.ListWorkflows(ctx, workspaceID)
}

func (c *Cached) UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error {
	if err := c.inner.UpdateWorkflowFields(ctx, id, fields); err != nil {
		return err
	}
	c.invalidate(ctx, workflowKey(id))
	return nil
}

func (c *Cached) DeleteWorkflow(ctx context.Context, id string) error {
	if err := c.inner.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, workflowKey(id), graphKey(id))
	return nil
}

func (c *Cached) GetGraph(ctx context.Context, workflowID string) (*graph.Snapshot, error) {
	var snap graph.Snapshot
	if err := c.cache.GetJSON(ctx, graphKey(workflowID), &snap); err == nil {
		c.hit("graph")
		return &snap, nil
	} else if !cache.IsCacheMiss(err) {
		c.logger.Warn("graph cache read failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
	c.miss("graph")

	got, err := c.inner.GetGraph(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, graphKey(workflowID), got, c.ttl); err != nil {
		c.logger.Warn("graph cache write failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
	return got, nil
}

func (c *Cached) SaveGraph(ctx context.Context, workflowID string, snap *graph.Snapshot) error {
	if err := c.inner.SaveGraph(ctx, workflowID, snap); err != nil {
		return err
	}
	c.invalidate(ctx, graphKey(workflowID), workflowKey(workflowID))
	return nil
}

func (c *Cached) CreateAction(ctx context.Context, action *types.Action) error {
	return c.inner.CreateAction(ctx, action)
}

func (c *Cached) GetAction(ctx context.Context, id string) (*types.Action, error) {
	return c.inner.GetAction(ctx, id)
}

func (c *Cached) DeleteAction(ctx context.Context, id string) error {
	return c.inner.DeleteAction(ctx, id)
}

func (c *Cached) UpdateActionFields(ctx context.Context, id string, fields map[string]any) error {
	return c.inner.UpdateActionFields(ctx, id, fields)
}

func (c *Cached) CountActions(ctx context.Context, workflowID string) (int64, error) {
	return c.inner.CountActions(ctx, workflowID)
}

func (c *Cached) RecordActionEvent(ctx context.Context, id string, failed bool) error {
	return c.inner.RecordActionEvent(ctx, id, failed)
}

func (c *Cached) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}
