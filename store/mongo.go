package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/graph"
	"github.com/tideflow-io/tideflow/types"
)

// workflowDoc is the MongoDB document for a workflow. The graph snapshot is
// embedded as a subdocument, which is the natural shape for an opaque JSON
// graph document.
type workflowDoc struct {
	ID          string          `bson:"_id"`
	WorkspaceID string          `bson:"workspace_id"`
	Title       string          `bson:"title"`
	Description string          `bson:"description"`
	Status      string          `bson:"status"`
	Graph       *graph.Snapshot `bson:"graph,omitempty"`
	CreatedAt   time.Time       `bson:"created_at"`
	UpdatedAt   time.Time       `bson:"updated_at"`
}

// actionDoc is the MongoDB document for an action record.
type actionDoc struct {
	ID             string    `bson:"_id"`
	WorkflowID     string    `bson:"workflow_id"`
	Type           string    `bson:"type"`
	Title          string    `bson:"title"`
	Configured     bool      `bson:"configured"`
	EventsTotal    int64     `bson:"events_total"`
	EventsFailures int64     `bson:"events_failures"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// Mongo is a document Store backed by MongoDB.
type Mongo struct {
	client    *mongo.Client
	workflows *mongo.Collection
	actions   *mongo.Collection
	logger    *zap.Logger
}

// NewMongo connects to MongoDB and returns a document store.
func NewMongo(ctx context.Context, uri, database string, logger *zap.Logger) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	return &Mongo{
		client:    client,
		workflows: db.Collection("workflows"),
		actions:   db.Collection("actions"),
		logger:    logger.With(zap.String("component", "store_mongo")),
	}, nil
}

func (m *Mongo) CreateWorkflow(ctx context.Context, wf *types.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = types.WorkflowOffline
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	doc := workflowDoc{
		ID:          wf.ID,
		WorkspaceID: wf.WorkspaceID,
		Title:       wf.Title,
		Description: wf.Description,
		Status:      string(wf.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := m.workflows.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("workflow %s: %w", wf.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

func (m *Mongo) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	var doc workflowDoc
	err := m.workflows.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return docToWorkflow(&doc), nil
}

func (m *Mongo) ListWorkflows(ctx context.Context, workspaceID string) ([]*types.Workflow, error) {
	filter := bson.M{}
	if workspaceID != "" {
		filter["workspace_id"] = workspaceID
	}
	cur, err := m.workflows.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer cur.Close(ctx)
	out := make([]*types.Workflow, 0)
	for cur.Next(ctx) {
		var doc workflowDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode workflow: %w", err)
		}
		out = append(out, docToWorkflow(&doc))
	}
	return out, cur.Err()
}

func (m *Mongo) UpdateWorkflowFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateWorkflowFields(fields); err != nil {
		return err
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	res, err := m.workflows.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update workflow fields: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := m.workflows.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if _, err := m.actions.DeleteMany(ctx, bson.M{"workflow_id": id}); err != nil {
		return fmt.Errorf("delete workflow actions: %w", err)
	}
	return nil
}

func (m *Mongo) GetGraph(ctx context.Context, workflowID string) (*graph.Snapshot, error) {
	var doc workflowDoc
	err := m.workflows.FindOne(ctx, bson.M{"_id": workflowID},
		options.FindOne().SetProjection(bson.M{"graph": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get graph: %w", err)
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("graph for workflow %s: %w", workflowID, ErrNotFound)
	}
	return doc.Graph, nil
}

func (m *Mongo) SaveGraph(ctx context.Context, workflowID string, snap *graph.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	res, err := m.workflows.UpdateOne(ctx, bson.M{"_id": workflowID},
		bson.M{"$set": bson.M{"graph": snap, "updated_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("workflow %s: %w", workflowID, ErrNotFound)
	}
	return nil
}

func (m *Mongo) CreateAction(ctx context.Context, action *types.Action) error {
	if err := m.workflows.FindOne(ctx, bson.M{"_id": action.WorkflowID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("workflow %s: %w", action.WorkflowID, ErrNotFound)
		}
		return fmt.Errorf("check workflow: %w", err)
	}
	count, err := m.actions.CountDocuments(ctx, bson.M{"workflow_id": action.WorkflowID})
	if err != nil {
		return fmt.Errorf("count actions: %w", err)
	}
	if count >= graph.MaxNodes {
		return fmt.Errorf("workflow %s: %w", action.WorkflowID, graph.ErrNodeLimit)
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	action.CreatedAt = now
	action.UpdatedAt = now
	doc := actionDoc{
		ID:         action.ID,
		WorkflowID: action.WorkflowID,
		Type:       action.Type,
		Title:      action.Title,
		Configured: action.Configured,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := m.actions.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

func (m *Mongo) GetAction(ctx context.Context, id string) (*types.Action, error) {
	var doc actionDoc
	err := m.actions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return docToAction(&doc), nil
}

func (m *Mongo) DeleteAction(ctx context.Context, id string) error {
	res, err := m.actions.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete action: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) UpdateActionFields(ctx context.Context, id string, fields map[string]any) error {
	if err := ValidateActionFields(fields); err != nil {
		return err
	}
	set := bson.M{"updated_at": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	res, err := m.actions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update action fields: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) CountActions(ctx context.Context, workflowID string) (int64, error) {
	count, err := m.actions.CountDocuments(ctx, bson.M{"workflow_id": workflowID})
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}

func (m *Mongo) RecordActionEvent(ctx context.Context, id string, failed bool) error {
	inc := bson.M{"events_total": 1}
	if failed {
		inc["events_failures"] = 1
	}
	res, err := m.actions.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("record action event: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("action %s: %w", id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func docToWorkflow(doc *workflowDoc) *types.Workflow {
	return &types.Workflow{
		ID:          doc.ID,
		WorkspaceID: doc.WorkspaceID,
		Title:       doc.Title,
		Description: doc.Description,
		Status:      types.WorkflowStatus(doc.Status),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

func docToAction(doc *actionDoc) *types.Action {
	return &types.Action{
		ID:         doc.ID,
		WorkflowID: doc.WorkflowID,
		Type:       doc.Type,
		Title:      doc.Title,
		Configured: doc.Configured,
		Events: graph.EventCounts{
			Total:    doc.EventsTotal,
			Failures: doc.EventsFailures,
		},
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
