package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lci/lci-lookup/internal/domain/model"
	apperrors "github.com/lci/lci-lookup/internal/errors"
	"github.com/lci/lci-lookup/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRecordService_CreateRoutesByNID(t *testing.T) {
	tests := []struct {
		nid  string
		want model.RecordList
	}{
		{nid: "1234", want: model.LongList},
		{nid: " 5678 ", want: model.LongList},
		{nid: "ABC123", want: model.ShortList},
		{nid: "123", want: model.ShortList},
	}

	for _, tt := range tests {
		t.Run(tt.nid, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockRecordRepository(ctrl)
			svc := NewRecordService(RecordServiceOptions{Repo: repo})

			repo.EXPECT().
				Create(gomock.Any(), tt.want, gomock.Any()).
				DoAndReturn(func(_ context.Context, _ model.RecordList, req model.CreateRecordRequest) (*model.Record, error) {
					assert.Equal(t, strings.TrimSpace(tt.nid), req.NID)
					return &model.Record{ID: 1, NID: req.NID, LIC: req.LIC, Name: req.Name}, nil
				})

			rec, err := svc.Create(context.Background(), model.CreateRecordRequest{NID: tt.nid, LIC: "LIC001", Name: "John Doe"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.List)
		})
	}
}

func TestRecordService_CreateValidation(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	_, err := svc.Create(context.Background(), model.CreateRecordRequest{NID: "1234", Name: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "LIC", apperrors.GetField(err))
	assert.Contains(t, err.Error(), "LIC is required")
}

func TestRecordService_CreateDuplicate(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	repo.EXPECT().Create(gomock.Any(), model.ShortList, gomock.Any()).Return(nil, &pgconn.PgError{
		Code:      pgerrcode.UniqueViolation,
		TableName: "shortlists",
		Detail:    "Key (nid)=(ABC123) already exists.",
	})

	_, err := svc.Create(context.Background(), model.CreateRecordRequest{NID: "ABC123", LIC: "LIC009", Name: "Dup"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "nid", apperrors.GetField(err))
}

func TestRecordService_SearchConcatenatesShortThenLong(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	repo.EXPECT().Search(gomock.Any(), model.ShortList, "doe", DefaultSearchLimit).
		Return([]*model.Record{{NID: "ABC123", Name: "John Doe"}}, nil)
	repo.EXPECT().Search(gomock.Any(), model.LongList, "doe", DefaultSearchLimit).
		Return([]*model.Record{{NID: "1234", Name: "Jane Doe"}}, nil)

	got, err := svc.Search(context.Background(), model.SearchRecordsRequest{Term: " doe "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ABC123", got[0].NID)
	assert.Equal(t, model.ShortList, got[0].List)
	assert.Equal(t, "1234", got[1].NID)
	assert.Equal(t, model.LongList, got[1].List)
}

func TestRecordService_SearchLimitAndErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	repo.EXPECT().Search(gomock.Any(), model.ShortList, "x", 5).Return(nil, nil)
	repo.EXPECT().Search(gomock.Any(), model.LongList, "x", 5).Return(nil, errors.New("conn reset"))

	_, err := svc.Search(context.Background(), model.SearchRecordsRequest{Term: "x", Limit: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search long list")

	_, err = svc.Search(context.Background(), model.SearchRecordsRequest{Term: "  "})
	assert.True(t, apperrors.IsValidation(err))
}

func TestRecordService_Counts(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	repo.EXPECT().Count(gomock.Any(), model.ShortList).Return(3, nil)
	repo.EXPECT().Count(gomock.Any(), model.LongList).Return(4, nil)

	got, err := svc.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ListCounts{Short: 3, Long: 4}, got)
}

func TestRecordService_CountsError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRecordRepository(ctrl)
	svc := NewRecordService(RecordServiceOptions{Repo: repo})

	repo.EXPECT().Count(gomock.Any(), model.ShortList).Return(0, context.DeadlineExceeded)
	repo.EXPECT().Count(gomock.Any(), model.LongList).Return(1, nil).AnyTimes()

	_, err := svc.Counts(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
}
