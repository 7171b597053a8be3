package store

import (
	"context"
	"errors"

	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
)

// PostgresPersister adapts the database layer to Persister.
type PostgresPersister struct {
	*db.DB
}

func NewPostgresPersister(database *db.DB) *PostgresPersister {
	return &PostgresPersister{DB: database}
}

func (p *PostgresPersister) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	project, err := p.DB.GetProject(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return project, err
}
