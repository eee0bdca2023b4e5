package upload

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vidmill/vidmill/internal/pkg/dispatch"
	"github.com/vidmill/vidmill/internal/pkg/persistence"
)

// mockJobCreator is encoding dispatch mock
type mockJobCreator struct{ mock.Mock }

func (m *mockJobCreator) CreateEncodingJobs(ctx context.Context, media *persistence.Media, srcWidth, srcHeight int, opts dispatch.JobOptions) (string, error) {
	args := m.Called(ctx, media, srcWidth, srcHeight, opts)
	return args.String(0), args.Error(1)
}

func (m *mockJobCreator) RetryFailedJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}
