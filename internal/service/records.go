package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lci/lci-lookup/internal/domain/model"
	apperrors "github.com/lci/lci-lookup/internal/errors"
	"github.com/lci/lci-lookup/internal/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultSearchLimit caps results per list when the request does not set a limit.
const DefaultSearchLimit = 100

// RecordServiceOptions groups dependencies for RecordService.
type RecordServiceOptions struct {
	Repo   ports.RecordRepository
	Logger *slog.Logger
}

// RecordService files records into the short or long list and searches both.
type RecordService struct {
	repo   ports.RecordRepository
	logger *slog.Logger
}

// NewRecordService constructs a new RecordService.
func NewRecordService(opts RecordServiceOptions) *RecordService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordService{repo: opts.Repo, logger: logger}
}

// Create validates req and stores it in the list its NID belongs to.
func (s *RecordService) Create(ctx context.Context, req model.CreateRecordRequest) (*model.Record, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, validationError("invalid record", err)
	}

	list := model.ListForNID(req.NID)
	rec, err := s.repo.Create(ctx, list, req)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	rec.List = list
	s.logger.InfoContext(ctx, "record created", "list", string(list), "nid", rec.NID)
	return rec, nil
}

// Search matches the term against both lists concurrently. Short-list results come first.
func (s *RecordService) Search(ctx context.Context, req model.SearchRecordsRequest) ([]*model.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError("invalid search", err)
	}
	term := strings.TrimSpace(req.Term)
	limit := req.Limit
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	lists := []model.RecordList{model.ShortList, model.LongList}
	results := make([][]*model.Record, len(lists))

	g, gctx := errgroup.WithContext(ctx)
	for i, list := range lists {
		g.Go(func() error {
			recs, err := s.repo.Search(gctx, list, term, limit)
			if err != nil {
				return fmt.Errorf("search %s list: %w", list, err)
			}
			for _, r := range recs {
				r.List = list
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.MapDBError(err)
	}

	out := make([]*model.Record, 0, len(results[0])+len(results[1]))
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}

// ListCounts holds the number of records per list.
type ListCounts struct {
	Short int `json:"short"`
	Long  int `json:"long"`
}

// Counts reports how many records each list holds.
func (s *RecordService) Counts(ctx context.Context) (ListCounts, error) {
	var out ListCounts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.Count(gctx, model.ShortList)
		out.Short = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.Count(gctx, model.LongList)
		out.Long = n
		return err
	})
	if err := g.Wait(); err != nil {
		return ListCounts{}, apperrors.MapDBError(err)
	}
	return out, nil
}

// validationError wraps field errors; Field names the first offending input.
func validationError(msg string, err error) error {
	appErr := &apperrors.AppError{Code: apperrors.ErrCodeValidation, Message: msg, Cause: err}
	var fe *model.FieldError
	if errors.As(err, &fe) {
		appErr.Field = fe.Field
	}
	return appErr
}
