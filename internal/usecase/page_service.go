package usecase

import (
	"context"

	"github.com/hszk-dev/countrytube/internal/domain/model"
)

// PageService computes one page of one country's catalog.
type PageService interface {
	// GetPage returns the page [offset, offset+pageSize) of c.
	// DispatchedPrefetcher reports whether this call dispatched a warm-up.
	GetPage(ctx context.Context, c *model.CountryCatalog, offset, pageSize int) (*model.PageResult, error)
}

type pageService struct{}

// NewPageService creates a PageService that paginates directly from the catalog.
func NewPageService() PageService {
	return pageService{}
}

func (pageService) GetPage(_ context.Context, c *model.CountryCatalog, offset, pageSize int) (*model.PageResult, error) {
	return model.Paginate(c, offset, pageSize)
}
