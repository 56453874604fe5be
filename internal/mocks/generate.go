// Package mocks provides gomock implementations of repository ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockRecordRepository(ctrl)
//	repo.EXPECT().Search(gomock.Any(), model.ShortList, "doe", 0).Return(records, nil)
package mocks

// RecordRepository: Count, Create, Search
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=record_repository_mock.go github.com/lci/lci-lookup/internal/ports RecordRepository
