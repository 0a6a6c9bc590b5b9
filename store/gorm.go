package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// WorkflowRecord is the relational row for a workflow. The graph document is
// stored as an opaque serialized snapshot.
type WorkflowRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	WorkspaceID string `gorm:"size:36;index"`
	Title       string `gorm:"size:255"`
	Description string
	Status      string `gorm:"size:16"`
	GraphJSON   []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName maps WorkflowRecord to the workflows table.
func (WorkflowRecord) TableName() string { return "workflows" }

// ActionRecord is the relational row for an action.
type ActionRecord struct {
	ID             string `gorm:"primaryKey;size:36"`
	WorkflowID     string `gorm:"size:36;index"`
	Type           string `gorm:"size:64"`
	Title          string `gorm:"size:255"`
	Configured     bool
	EventsTotal    int64
	EventsFailures int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName maps ActionRecord to the actions table.
func (ActionRecord) TableName() string { return "actions" }

// InitSchema ensures the store tables exist. Production deployments use the
// versioned migrations instead; this covers sqlite and tests.
func InitSchema(db *gorm.DB) error {
	return db.AutoMigrate(&WorkflowRecord{}, &ActionRecord{})
}

// Gorm is a relational Store backed by GORM.
type Gorm struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGorm creates a relational store.
func NewGorm(db *gorm.DB, logger *zap.Logger) (*Gorm, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	return &Gorm{
		db:     db,
		logger: logger.With(zap.String("component", "store_gorm")),
	}, nil
}

func (g *Gorm) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowOffline
	}
	rec := WorkflowRecord{
		ID:          wf.ID,
		WorkspaceID: wf.WorkspaceID,
		Title:       wf.Title,
		Description: wf.Description,
		Status:      string(wf.Status),
	}
	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("workflow %s: %w", wf.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	wf.CreatedAt = rec.CreatedAt
	wf.UpdatedAt = rec.UpdatedAt
	return nil
}

func (g *Gorm) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var rec WorkflowRecord
	if err := g.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return recordToWorkflow(&rec), nil
}

func (g *Gorm) ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error) {
	q := g.db.WithContext(ctx).Order("created_at ASC")
	if workspaceID != "" {
		q = q.Where("workspace_id = ?", workspaceID)
	}
	var recs []WorkflowRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	out := make([]*types.Workflow, 0, len(recs))
	for i := range recs {
		out = append(out, recordToWorkflow(&recs[i]))
	}
	return out, nil
}

func (g *Gorm) UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateWorkflowFields(fields); err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&WorkflowRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update workflow fields: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return nil
}

func (g *Gorm) DeleteWorkflow(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&WorkflowRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("delete workflow: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		if err := tx.Delete(&ActionRecord{}, "workflow_id = ?", id).Error; err != nil {
			return fmt.Errorf("delete workflow actions: %w", err)
		}
		return nil
	})
}

func (g *Gorm) GetGraph(ctx context.Context, workflowID string) (*graph.Snapshot, error) {
	var rec WorkflowRecord
	if err := g.db.WithContext(ctx).Select("id", "graph_json").First(&rec, "id = ?", workflowID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
		}
		return nil, fmt.Errorf("get graph: %w", err)
	}
	if len(rec.GraphJSON) == 0 {
		return nil, fmt.Errorf("graph for workflow %s: %w", workflowID, ErrNotFound)
	}
	return graph.Decode(rec.GraphJSON)
}

func (g *Gorm) SaveGraph(ctx context.Context, workflowID string, snap *graph.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	res := g.db.WithContext(ctx).Model(&WorkflowRecord{}).Where("id = ?", workflowID).
		Update("graph_json", data)
	if res.Error != nil {
		return fmt.Errorf("save graph: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return nil
}

func (g *Gorm) CreateAction(ctx context.Context, action *types.Action) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	// Cap check and insert share a transaction so concurrent creations
	// cannot overshoot the limit.
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var wfCount int64
		if err := tx.Model(&WorkflowRecord{}).Where("id = ?", action.WorkflowID).Count(&wfCount).Error; err != nil {
			return fmt.Errorf("check workflow: %w", err)
		}
		if wfCount == 0 {
			return fmt.Errorf("workflow %s: %w", action.WorkflowID, ErrNotFound)
		}
		var count int64
		if err := tx.Model(&ActionRecord{}).Where("workflow_id = ?", action.WorkflowID).Count(&count).Error; err != nil {
			return fmt.Errorf("count actions: %w", err)
		}
		if count >= graph.MaxNodes {
			return fmt.Errorf("workflow %s: %w", action.WorkflowID, graph.ErrNodeLimit)
		}
		rec := ActionRecord{
			ID:         action.ID,
			WorkflowID: action.WorkflowID,
			Type:       action.Type,
			Title:      action.Title,
			Configured: action.Configured,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create action: %w", err)
		}
		action.CreatedAt = rec.CreatedAt
		action.UpdatedAt = rec.UpdatedAt
		return nil
	})
}

func (g *Gorm) GetAction(ctx context.Context, id string) (*types.Action, error) {
	var rec ActionRecord
	if err := g.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get action: %w", err)
	}
	return recordToAction(&rec), nil
}

func (g *Gorm) DeleteAction(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&ActionRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete action: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (g *Gorm) UpdateActionFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateActionFields(fields); err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&ActionRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update action fields: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (g *Gorm) CountActions(ctx context.Context, workflowID string) (int64, error) {
	var count int64
	if err := g.db.WithContext(ctx).Model(&ActionRecord{}).Where("workflow_id = ?", workflowID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}

func (g *Gorm) RecordActionEvent(ctx context.Context, id string, failed bool) error {
	updates := map[string]any{"events_total": gorm.Expr("events_total + 1")}
	if failed {
		updates["events_failures"] = gorm.Expr("events_failures + 1")
	}
	res := g.db.WithContext(ctx).Model(&ActionRecord{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("record action event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (g *Gorm) Close(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordToWorkflow(rec *WorkflowRecord) *types.Workflow {
	return &types.Workflow{
		ID:          rec.ID,
		WorkspaceID: rec.WorkspaceID,
		Title:       rec.Title,
		Description: rec.Description,
		Status:      types.WorkflowStatus(rec.Status),
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func recordToAction(rec *ActionRecord) *types.Action {
	return &types.Action{
		ID:         rec.ID,
		WorkflowID: rec.WorkflowID,
		Type:       rec.Type,
		Title:      rec.Title,
		Configured: rec.Configured,
		Events: graph.EventCounts{
			Total:    rec.EventsTotal,
			Failures: rec.EventsFailures,
		},
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}
