package memstore

import (
	"context"
	"slices"
	"sort"

	"github.com/dmitrijs2005/calsync/internal/common"
	"github.com/dmitrijs2005/calsync/internal/models"
)

type integrationRepo struct{ m *Manager }

func (r *integrationRepo) sorted(keep func(models.Integration) bool) []models.Integration {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.Integration
	for _, in := range r.m.d.integrations {
		if keep(in) {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *integrationRepo) List(context.Context) ([]models.Integration, error) {
	return r.sorted(func(models.Integration) bool { return true }), nil
}

func (r *integrationRepo) ListByUser(_ context.Context, userID string) ([]models.Integration, error) {
	return r.sorted(func(in models.Integration) bool { return in.UserID == userID }), nil
}

func (r *integrationRepo) Get(_ context.Context, id string) (*models.Integration, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	in, ok := r.m.d.integrations[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &in, nil
}

func (r *integrationRepo) Upsert(_ context.Context, in *models.Integration) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored := *in
	stored.Credentials = models.Credentials{}
	if prev, ok := r.m.d.integrations[in.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	r.m.d.integrations[in.ID] = stored
	return nil
}

func (r *integrationRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.d.integrations, id)
	delete(r.m.d.credentials, id)
	return nil
}

type credentialRepo struct{ m *Manager }

func (r *credentialRepo) Save(_ context.Context, id string, sealed []byte) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.d.credentials[id] = slices.Clone(sealed)
	return nil
}

func (r *credentialRepo) Load(_ context.Context, id string) ([]byte, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.d.credentials[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return slices.Clone(b), nil
}

func (r *credentialRepo) Delete(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	delete(r.m.d.credentials, id)
	return nil
}

type conflictRepo struct{ m *Manager }

func (r *conflictRepo) Get(_ context.Context, id string) (*models.SyncConflict, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.d.conflicts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyConflict(c), nil
}

func (r *conflictRepo) Save(_ context.Context, c *models.SyncConflict) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.d.conflicts[c.ID] = *copyConflict(*c)
	return nil
}

func (r *conflictRepo) MarkResolved(_ context.Context, id string, res models.Resolution) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.d.conflicts[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.Resolution = &res
	r.m.d.conflicts[id] = c
	return nil
}

func (r *conflictRepo) AppendAudit(_ context.Context, rec models.ResolutionRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.d.audit = append(r.m.d.audit, rec)
	return nil
}

func (r *conflictRepo) ListAudit(_ context.Context, conflictID string) ([]models.ResolutionRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []models.ResolutionRecord
	for _, rec := range r.m.d.audit {
		if rec.ConflictID == conflictID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func copyConflict(c models.SyncConflict) *models.SyncConflict {
	if c.Resolution != nil {
		res := *c.Resolution
		c.Resolution = &res
	}
	return &c
}
