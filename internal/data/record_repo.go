package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lci/lci-lookup/internal/data/database"
	"github.com/lci/lci-lookup/internal/data/pgxutil"
	"github.com/lci/lci-lookup/internal/domain/model"
)

// ErrUnknownList is returned for a list name with no backing table.
var ErrUnknownList = errors.New("unknown record list")

var recordColumns = []string{"id", "nid", "lic", "name", "created_at", "updated_at"}

// RecordRepo stores provider records in the shortlists and longlists tables.
type RecordRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRecordRepo creates a new RecordRepo with real time provider.
func NewRecordRepo(db *sql.DB) *RecordRepo {
	return &RecordRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewRecordRepoWithTimeProvider creates a new RecordRepo with a custom time provider (useful for tests).
func NewRecordRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RecordRepo {
	return &RecordRepo{DB: db, timeProvider: tp}
}

func tableFor(list model.RecordList) (string, error) {
	switch list {
	case model.ShortList, model.LongList:
		return list.Table(), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownList, list)
	}
}

// Create inserts req into list. Constraint violations are returned as *pgconn.PgError for the
// caller to map.
func (r *RecordRepo) Create(
	ctx context.Context,
	list model.RecordList,
	req model.CreateRecordRequest,
) (*model.Record, error) {
	table, err := tableFor(list)
	if err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (nid, lic, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, nid, lic, name, created_at, updated_at
	`, pgx.Identifier{table}.Sanitize())

	var out model.Record
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, req.NID, req.LIC, req.Name, now)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		out, qerr = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Record])
		return qerr
	}); err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	out.List = list
	return &out, nil
}

// Search returns up to limit records of list whose NID, LIC or name contains term,
// case-insensitively, oldest first.
func (r *RecordRepo) Search(
	ctx context.Context,
	list model.RecordList,
	term string,
	limit int,
) ([]*model.Record, error) {
	table, err := tableFor(list)
	if err != nil {
		return nil, err
	}

	query, args := database.BuildListQuery(database.NewListQueryOptions(table,
		database.WithColumns(recordColumns...),
		database.WithCondition(database.WhereRawCond(
			`(nid ILIKE $1 OR lic ILIKE $1 OR name ILIKE $1)`, ContainsPattern(term))),
		database.WithOrderBy("id", "ASC"),
		database.WithLimit(limit),
	))

	var rowsOut []model.Record
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		rowsOut, qerr = pgx.CollectRows(rows, pgx.RowToStructByName[model.Record])
		return qerr
	}); err != nil {
		return nil, fmt.Errorf("search %s: %w", table, err)
	}

	res := make([]*model.Record, len(rowsOut))
	for i := range rowsOut {
		rowsOut[i].List = list
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// Count returns the number of records in list.
func (r *RecordRepo) Count(ctx context.Context, list model.RecordList) (int, error) {
	table, err := tableFor(list)
	if err != nil {
		return 0, err
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions(table, database.WithCountOnly()))

	var n int
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		return conn.QueryRow(ctx, query, args...).Scan(&n)
	}); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// ContainsPattern turns term into an ILIKE pattern matching it anywhere, with LIKE
// metacharacters in term matched literally.
func ContainsPattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// SeedRecords are the sample rows loaded by Seed.
var SeedRecords = []model.CreateRecordRequest{
	{NID: "ABC123", LIC: "LIC001", Name: "John Doe"},
	{NID: "DEF456", LIC: "LIC002", Name: "Jane Smith"},
	{NID: "GHI789", LIC: "LIC003", Name: "Bob Johnson"},
	{NID: "1234", LIC: "LIC004", Name: "Alice Williams"},
	{NID: "5678", LIC: "LIC005", Name: "Charlie Brown"},
	{NID: "9012", LIC: "LIC006", Name: "Diana Clark"},
}

// Seed inserts recs into the list each NID belongs to, in one transaction. Rows that collide with
// an existing NID or LIC are skipped. It returns the number of rows inserted.
func (r *RecordRepo) Seed(ctx context.Context, recs []model.CreateRecordRequest) (int, error) {
	now := r.timeProvider.Now().UTC()
	inserted := 0
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		for _, rec := range recs {
			table := pgx.Identifier{model.ListForNID(rec.NID).Table()}.Sanitize()
			tag, err := tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (nid, lic, name, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT DO NOTHING
			`, table), rec.NID, rec.LIC, rec.Name, now)
			if err != nil {
				return fmt.Errorf("seed %s: %w", rec.NID, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	}})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
