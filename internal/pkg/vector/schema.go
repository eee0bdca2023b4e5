package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EnsureSchema creates the chunk class if it does not exist yet
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("can't check class: %w", err)
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:      ClassName,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "mediaId", DataType: []string{"text"}},
			{Name: "moduleId", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "startTime", DataType: []string{"number"}},
		},
	}
	if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("can't create class: %w", err)
	}
	return nil
}
