package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/metevents/internal/domain"
)

// MultiLoader fans a batch out to every loader. All loaders are attempted;
// their errors are joined.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, records []domain.StormRecord) error {
	var errs []error
	for _, l := range m {
		if err := l.LoadBatch(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
