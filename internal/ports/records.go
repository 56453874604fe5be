package ports

import (
	"context"

	"github.com/lci/lci-lookup/internal/domain/model"
)

// RecordRepository stores provider records in the short and long lists.
type RecordRepository interface {
	Create(ctx context.Context, list model.RecordList, req model.CreateRecordRequest) (*model.Record, error)
	Search(ctx context.Context, list model.RecordList, term string, limit int) ([]*model.Record, error)
	Count(ctx context.Context, list model.RecordList) (int, error)
}
