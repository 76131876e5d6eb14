package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"apptgate/backend/internal/domain"
	"apptgate/backend/internal/store"
)

type PolicyRepo struct {
	db *bun.DB
}

func NewPolicyRepo(db *bun.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

func (r *PolicyRepo) ListActive(ctx context.Context, practitionerID string) ([]domain.Policy, error) {
	var rows []domain.Policy
	err := r.db.NewSelect().
		Model(&rows).
		Where("practitioner_id = ?", practitionerID).
		Where("active").
		OrderExpr("priority DESC").
		OrderExpr("(variant = ?) DESC", domain.VariantOverride).
		OrderExpr("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PolicyRepo) List(ctx context.Context, filter store.PolicyFilter) ([]domain.Policy, error) {
	var rows []domain.Policy
	q := r.db.NewSelect().Model(&rows)
	if filter.PractitionerID != "" {
		q = q.Where("practitioner_id = ?", filter.PractitionerID)
	}
	if filter.Variant != "" {
		q = q.Where("variant = ?", filter.Variant)
	}
	if filter.Active != nil {
		q = q.Where("active = ?", *filter.Active)
	}
	err := q.
		OrderExpr("priority DESC").
		OrderExpr("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *PolicyRepo) Get(ctx context.Context, id uuid.UUID) (domain.Policy, error) {
	var p domain.Policy
	err := r.db.NewSelect().
		Model(&p).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Policy{}, store.ErrNotFound
		}
		return domain.Policy{}, err
	}
	return p, nil
}

func (r *PolicyRepo) Create(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	m := p
	_, err := r.db.NewInsert().Model(&m).Exec(ctx)
	if err != nil {
		return domain.Policy{}, err
	}
	return m, nil
}

func (r *PolicyRepo) Update(ctx context.Context, id uuid.UUID, patch store.PolicyUpdate) (domain.Policy, error) {
	var out domain.Policy
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var m domain.Policy
		err := tx.NewSelect().
			Model(&m).
			Where("id = ?", id).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		applyPolicyPatch(&m, patch)

		_, err = tx.NewUpdate().
			Model(&m).
			Column("label", "payload", "active", "priority", "last_modified_by", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Policy{}, err
	}
	return out, nil
}

func (r *PolicyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Policy)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func applyPolicyPatch(p *domain.Policy, patch store.PolicyUpdate) {
	if patch.Label != nil {
		p.Label = *patch.Label
	}
	if patch.Payload != nil {
		p.Payload = patch.Payload
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.LastModifiedBy != "" {
		p.LastModifiedBy = patch.LastModifiedBy
	}
}
