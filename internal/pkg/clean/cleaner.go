package clean

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
)

// PrefixDeleter removes stored objects by prefix
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// ObjectCleaner drops all stored media objects under "{id}/"
type ObjectCleaner struct {
	filer PrefixDeleter
}

// NewObjectCleaner creates ObjectCleaner instance
func NewObjectCleaner(filer PrefixDeleter) (*ObjectCleaner, error) {
	if filer == nil {
		return nil, fmt.Errorf("no filer")
	}
	return &ObjectCleaner{filer: filer}, nil
}

// Clean implements the cleaner contract
func (c *ObjectCleaner) Clean(ctx context.Context, id string) error {
	goapp.Log.Info().Str("ID", id).Msg("deleting stored objects")
	if err := c.filer.DeletePrefix(ctx, id+"/"); err != nil {
		return fmt.Errorf("can't delete objects of %s: %w", id, err)
	}
	return nil
}

// VectorDeleter removes vectors by media ID
type VectorDeleter interface {
	DeleteByMedia(ctx context.Context, mediaID string) error
}

// VectorCleaner drops media vectors from the vector store
type VectorCleaner struct {
	store VectorDeleter
}

// NewVectorCleaner creates VectorCleaner instance
func NewVectorCleaner(store VectorDeleter) (*VectorCleaner, error) {
	if store == nil {
		return nil, fmt.Errorf("no vector store")
	}
	return &VectorCleaner{store: store}, nil
}

// Clean implements the cleaner contract
func (c *VectorCleaner) Clean(ctx context.Context, id string) error {
	goapp.Log.Info().Str("ID", id).Msg("deleting vectors")
	if err := c.store.DeleteByMedia(ctx, id); err != nil {
		return fmt.Errorf("can't delete vectors of %s: %w", id, err)
	}
	return nil
}
