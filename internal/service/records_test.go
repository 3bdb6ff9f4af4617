package service

import (
	"context"
	"testing"

	"github.com/mirrorx/vault/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultID = "v1"

func ref(k models.EntityKind, id string) models.Ref { return models.Ref{Kind: k, ID: id} }

func TestCreateOperation_LinksBackToTargets(t *testing.T) {
	p1 := ref(models.KindPersona, "p1")
	td, deps := newTestDeps(p1)

	var stored *models.Operation
	repo := &mockRecordRepo[*models.Operation]{
		CreateFunc: func(_ context.Context, op *models.Operation) (*models.Operation, error) {
			out := *op
			out.ID = "op-new"
			stored = &out
			return &out, nil
		},
	}
	svc := NewOperationsService(repo, deps)

	got, err := svc.Create(context.Background(), vaultID, &models.Operation{
		ID:             "client-chosen",
		Name:           "  Night watch ",
		LinkedPersonas: []string{"p1", "p1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "op-new", got.ID)
	assert.Equal(t, vaultID, stored.VaultID)
	assert.Equal(t, "Night watch", stored.Name)
	assert.Equal(t, []string{"p1"}, stored.LinkedPersonas)
	assert.Equal(t, []string{"op-new"}, td.links.linked(p1, models.KindOperation))
	assert.Equal(t, 1, td.tx.calls)

	inserts := td.pub.ofType(models.ChangeInsert)
	require.Len(t, inserts, 1)
	assert.Equal(t, "operations", inserts[0].Table)
	updates := td.pub.ofType(models.ChangeUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "personas", updates[0].Table)
	assert.Equal(t, "p1", updates[0].RecordID)
	assert.Equal(t, []string{models.ActionCreate}, td.audit.actions())
}

func TestCreateOperation_MissingTarget(t *testing.T) {
	td, deps := newTestDeps()
	repo := &mockRecordRepo[*models.Operation]{
		CreateFunc: func(_ context.Context, op *models.Operation) (*models.Operation, error) {
			out := *op
			out.ID = "op-new"
			return &out, nil
		},
	}
	svc := NewOperationsService(repo, deps)

	_, err := svc.Create(context.Background(), vaultID, &models.Operation{Name: "x", LinkedResources: []string{"ghost"}})
	require.ErrorIs(t, err, models.ErrInvalidLink)
	assert.Empty(t, td.pub.events)
	assert.Empty(t, td.audit.entries)
}

func TestCreate_InvalidInput(t *testing.T) {
	_, deps := newTestDeps()
	repo := &mockRecordRepo[*models.Persona]{
		CreateFunc: func(context.Context, *models.Persona) (*models.Persona, error) {
			t.Fatal("repository must not be called for invalid input")
			return nil, nil
		},
	}
	svc := NewPersonasService(repo, deps)

	_, err := svc.Create(context.Background(), vaultID, &models.Persona{Name: "   "})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = svc.Create(context.Background(), vaultID, &models.Persona{Name: "ok", Status: "zombie"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestUpdateOperation_DiffsLinks(t *testing.T) {
	op1 := ref(models.KindOperation, "op1")
	p1 := ref(models.KindPersona, "p1")
	p2 := ref(models.KindPersona, "p2")
	td, deps := newTestDeps(op1, p1, p2)
	td.links.set(p1, models.KindOperation, "op1")

	var written *models.Operation
	repo := &mockRecordRepo[*models.Operation]{
		GetFunc: func(_ context.Context, v, id string) (*models.Operation, error) {
			assert.Equal(t, vaultID, v)
			return &models.Operation{ID: id, VaultID: v, Name: "op", LinkedPersonas: []string{"p1"}}, nil
		},
		UpdateFunc: func(_ context.Context, op *models.Operation) (*models.Operation, error) {
			written = op
			return op, nil
		},
	}
	svc := NewOperationsService(repo, deps)

	next := []string{"p2"}
	status := models.OperationCritical
	got, err := svc.Update(context.Background(), vaultID, "op1", models.OperationPatch{LinkedPersonas: &next, Status: &status})
	require.NoError(t, err)

	assert.Equal(t, models.OperationCritical, got.Status)
	assert.Equal(t, []string{"p2"}, written.LinkedPersonas)
	assert.Empty(t, td.links.linked(p1, models.KindOperation))
	assert.Equal(t, []string{"op1"}, td.links.linked(p2, models.KindOperation))
	assert.Len(t, td.pub.ofType(models.ChangeUpdate), 3)
}

func TestUpdate_WithoutLinkChangesLeavesTargetsAlone(t *testing.T) {
	p1 := ref(models.KindPersona, "p1")
	td, deps := newTestDeps(p1)
	td.links.set(p1, models.KindResource, "r1")

	repo := &mockRecordRepo[*models.Resource]{
		GetFunc: func(_ context.Context, v, id string) (*models.Resource, error) {
			return &models.Resource{ID: id, VaultID: v, Name: "key", LinkedPersonas: []string{"p1"}}, nil
		},
		UpdateFunc: func(_ context.Context, r *models.Resource) (*models.Resource, error) { return r, nil },
	}
	svc := NewResourcesService(repo, deps)

	value := "s3cr3t"
	got, err := svc.Update(context.Background(), vaultID, "r1", models.ResourcePatch{Value: &value})
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got.Value)
	assert.Equal(t, []string{"r1"}, td.links.linked(p1, models.KindResource))
	assert.Len(t, td.pub.events, 1)
}

func TestUpdatePipeline_PartialAttachedToKeepsOtherLinks(t *testing.T) {
	o1 := ref(models.KindOperation, "o1")
	p1 := ref(models.KindPersona, "p1")
	td, deps := newTestDeps(o1, p1)
	td.links.set(o1, models.KindPipeline, "pl1")

	p := &models.Pipeline{
		ID: "pl1", VaultID: vaultID, Name: "Exfil",
		AttachedTo: models.AttachedTo{Operations: []string{"o1"}},
	}
	svc := NewPipelinesService(pipelineRepo(p), deps)

	personas := []string{"p1"}
	got, err := svc.Update(context.Background(), vaultID, "pl1", models.PipelinePatch{
		AttachedTo: &models.AttachedToPatch{Personas: &personas},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"o1"}, got.AttachedTo.Operations)
	assert.Equal(t, []string{"p1"}, got.AttachedTo.Personas)
	assert.Equal(t, []string{"pl1"}, td.links.linked(o1, models.KindPipeline))
	assert.Equal(t, []string{"pl1"}, td.links.linked(p1, models.KindPipeline))
}

func TestUpdate_NotFound(t *testing.T) {
	_, deps := newTestDeps()
	repo := &mockRecordRepo[*models.Operation]{
		GetFunc: func(context.Context, string, string) (*models.Operation, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := NewOperationsService(repo, deps)

	_, err := svc.Update(context.Background(), vaultID, "nope", models.OperationPatch{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteResource_PurgesBackReferences(t *testing.T) {
	op1 := ref(models.KindOperation, "op1")
	p1 := ref(models.KindPersona, "p1")
	pl1 := ref(models.KindPipeline, "pl1")
	td, deps := newTestDeps(op1, p1, pl1)
	td.links.set(op1, models.KindResource, "r1", "r2")
	td.links.set(p1, models.KindResource, "r1")
	td.links.set(pl1, models.KindResource, "r1")

	deleted := false
	repo := &mockRecordRepo[*models.Resource]{
		GetFunc: func(_ context.Context, v, id string) (*models.Resource, error) {
			return &models.Resource{ID: id, VaultID: v}, nil
		},
		DeleteFunc: func(_ context.Context, v, id string) error {
			assert.Equal(t, "r1", id)
			deleted = true
			return nil
		},
	}
	svc := NewResourcesService(repo, deps)

	require.NoError(t, svc.Delete(context.Background(), vaultID, "r1"))
	assert.True(t, deleted)
	assert.Equal(t, []string{"r2"}, td.links.linked(op1, models.KindResource))
	assert.Empty(t, td.links.linked(p1, models.KindResource))
	assert.Empty(t, td.links.linked(pl1, models.KindResource))

	require.Len(t, td.pub.ofType(models.ChangeDelete), 1)
	assert.Len(t, td.pub.ofType(models.ChangeUpdate), 3)
	assert.Equal(t, []string{models.ActionDelete}, td.audit.actions())
}

func TestDelete_NotFoundSkipsPurge(t *testing.T) {
	op1 := ref(models.KindOperation, "op1")
	td, deps := newTestDeps(op1)
	td.links.set(op1, models.KindPersona, "p9")

	repo := &mockRecordRepo[*models.Persona]{
		GetFunc: func(context.Context, string, string) (*models.Persona, error) {
			return nil, models.ErrNotFound
		},
	}
	svc := NewPersonasService(repo, deps)

	err := svc.Delete(context.Background(), vaultID, "p9")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []string{"p9"}, td.links.linked(op1, models.KindPersona))
}

func TestNotifierFailuresDoNotFailRequests(t *testing.T) {
	td, deps := newTestDeps()
	td.pub.err = errBoom
	td.audit.err = errBoom

	repo := &mockRecordRepo[*models.Persona]{
		CreateFunc: func(_ context.Context, p *models.Persona) (*models.Persona, error) {
			out := *p
			out.ID = "p1"
			return &out, nil
		},
	}
	svc := NewPersonasService(repo, deps)

	_, err := svc.Create(context.Background(), vaultID, &models.Persona{Name: "Ghost"})
	assert.NoError(t, err)
	assert.Len(t, td.pub.events, 1)
}

func TestAuditTakesUserFromContext(t *testing.T) {
	td, deps := newTestDeps()
	repo := &mockRecordRepo[*models.Persona]{
		CreateFunc: func(_ context.Context, p *models.Persona) (*models.Persona, error) {
			out := *p
			out.ID = "p1"
			return &out, nil
		},
	}
	svc := NewPersonasService(repo, deps)

	ctx := models.WithUserID(context.Background(), "u1")
	_, err := svc.Create(ctx, vaultID, &models.Persona{Name: "Ghost"})
	require.NoError(t, err)
	require.Len(t, td.audit.entries, 1)
	assert.Equal(t, "u1", td.audit.entries[0].UserID)
	assert.Equal(t, "persona", td.audit.entries[0].EntityKind)
}

func TestSubscribeToChanges(t *testing.T) {
	l := &fakeListener{}
	svc := NewResourcesService(&mockRecordRepo[*models.Resource]{}, Deps{Listener: l})

	stop := svc.SubscribeToResourceChanges(vaultID, func(models.ChangeEvent) {})
	assert.Equal(t, vaultID, l.vaultID)
	assert.Equal(t, "resources", l.table)
	stop()
	assert.True(t, l.stopped)

	noListener := NewOperationsService(&mockRecordRepo[*models.Operation]{}, Deps{})
	noListener.SubscribeToOperationChanges(vaultID, func(models.ChangeEvent) {})()
}
