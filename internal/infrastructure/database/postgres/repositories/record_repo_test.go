package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

var recordRows = []string{
	"id", "tree_id", "xref", "type", "gedcom", "name", "surname", "sex",
	"birth_date", "birth_sort", "death_date", "death_sort", "husband", "wife", "object_key",
	"updated_by", "created_at", "updated_at",
}

type RecordRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo record.RecordRepository
}

func (s *RecordRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)

	log := logging.NewNopLogger()
	conn := postgres.NewConnectionWithDB(s.db, log)
	s.repo = NewRecordRepository(conn, log)
}

func (s *RecordRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *RecordRepoTestSuite) addIndividualRow(rows *sqlmock.Rows, id int64, xref, name string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id, int64(1), xref, "INDI", "0 @"+xref+"@ INDI\n", name, "Smith", "M",
		"2 JAN 1900", 2415022, "", 0, "", "", "",
		uuid.Nil.String(), now, now,
	)
}

func (s *RecordRepoTestSuite) TestCreate_Success() {
	rec := &record.Record{
		TreeID: 1, Xref: "I1", Type: gedcom.RecordIndividual,
		Gedcom: "0 @I1@ INDI\n1 NAME John /Smith/\n",
		Name:   "John Smith", Surname: "Smith", Sex: "M",
	}

	s.mock.ExpectQuery("INSERT INTO records").
		WithArgs(int64(1), "I1", "INDI", rec.Gedcom, "John Smith", "Smith", "M",
			"", 0, "", 0, "", "", "", rec.UpdatedBy).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(10), time.Now(), time.Now()))

	s.NoError(s.repo.Create(context.Background(), rec))
	s.Equal(int64(10), rec.ID)
}

func (s *RecordRepoTestSuite) TestCreate_DuplicateXref() {
	rec := &record.Record{TreeID: 1, Xref: "I1", Type: gedcom.RecordIndividual}

	s.mock.ExpectQuery("INSERT INTO records").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "records_tree_xref_key"})

	err := s.repo.Create(context.Background(), rec)
	s.True(errors.IsCode(err, errors.ErrCodeDuplicateXref))
}

func (s *RecordRepoTestSuite) TestGet_Found() {
	s.mock.ExpectQuery(`SELECT id, tree_id, .* FROM records WHERE tree_id = \$1 AND xref = \$2`).
		WithArgs(int64(1), "I7").
		WillReturnRows(s.addIndividualRow(sqlmock.NewRows(recordRows), 7, "I7", "Jane Smith"))

	rec, err := s.repo.Get(context.Background(), 1, "I7")
	s.NoError(err)
	s.Equal("I7", rec.Xref)
	s.Equal(gedcom.RecordIndividual, rec.Type)
	s.Equal("Jane Smith", rec.Name)
	s.Equal(2415022, rec.BirthSort)
}

func (s *RecordRepoTestSuite) TestGet_NotFound() {
	s.mock.ExpectQuery("FROM records").
		WithArgs(int64(1), "I404").
		WillReturnError(sql.ErrNoRows)

	rec, err := s.repo.Get(context.Background(), 1, "I404")
	s.Nil(rec)
	s.True(errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func (s *RecordRepoTestSuite) TestUpdate_NotFound() {
	rec := &record.Record{TreeID: 1, Xref: "I404", Type: gedcom.RecordIndividual}

	s.mock.ExpectExec("UPDATE records SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.repo.Update(context.Background(), rec)
	s.True(errors.IsCode(err, errors.ErrCodeRecordNotFound))
}

func (s *RecordRepoTestSuite) TestDelete_Success() {
	s.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records WHERE tree_id = $1 AND xref = $2")).
		WithArgs(int64(1), "N3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Delete(context.Background(), 1, "N3"))
}

func (s *RecordRepoTestSuite) TestList_TypeAndNameFilter() {
	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records WHERE tree_id = \$1 AND type = \$2 AND name ILIKE \$3`).
		WithArgs(int64(1), "INDI", "%smith%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	rows := sqlmock.NewRows(recordRows)
	s.addIndividualRow(rows, 1, "I1", "Ann Smith")
	s.addIndividualRow(rows, 2, "I2", "Bob Smith")
	s.mock.ExpectQuery(`FROM records .* ORDER BY name ASC, id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs(int64(1), "INDI", "%smith%", 2, 0).
		WillReturnRows(rows)

	filter := record.ListFilter{TreeID: 1, Type: gedcom.RecordIndividual, Name: "smith"}
	filter.Page.Page = 1
	filter.Page.PageSize = 2

	recs, total, err := s.repo.List(context.Background(), filter)
	s.NoError(err)
	s.Equal(int64(3), total)
	s.Require().Len(recs, 2)
	s.Equal("Ann Smith", recs[0].Name)
}

func (s *RecordRepoTestSuite) TestNextXref_FreshCounter() {
	s.mock.ExpectQuery("INSERT INTO xref_counters").
		WithArgs(int64(1), "INDI").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(int64(1)))
	s.mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM records`).
		WithArgs(int64(1), "I1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	xref, err := s.repo.NextXref(context.Background(), 1, gedcom.RecordIndividual)
	s.NoError(err)
	s.Equal("I1", xref)
}

func (s *RecordRepoTestSuite) TestNextXref_SkipsImportedXrefs() {
	// The counter lags behind xrefs seeded by an import; taken numbers are
	// skipped until a free one turns up.
	s.mock.ExpectQuery("INSERT INTO xref_counters").
		WithArgs(int64(1), "FAM").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(int64(5)))
	s.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), "F5").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	s.mock.ExpectQuery("INSERT INTO xref_counters").
		WithArgs(int64(1), "FAM").
		WillReturnRows(sqlmock.NewRows([]string{"next_id"}).AddRow(int64(6)))
	s.mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(1), "F6").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	xref, err := s.repo.NextXref(context.Background(), 1, gedcom.RecordFamily)
	s.NoError(err)
	s.Equal("F6", xref)
}

func (s *RecordRepoTestSuite) TestCountByType() {
	rows := sqlmock.NewRows([]string{"type", "count"}).
		AddRow("INDI", int64(120)).
		AddRow("FAM", int64(40)).
		AddRow("SOUR", int64(9))
	s.mock.ExpectQuery(`SELECT type, COUNT\(\*\) FROM records WHERE tree_id = \$1 GROUP BY type`).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	counts, err := s.repo.CountByType(context.Background(), 1)
	s.NoError(err)
	s.Equal(int64(120), counts[gedcom.RecordIndividual])
	s.Equal(int64(40), counts[gedcom.RecordFamily])
	s.Equal(int64(9), counts[gedcom.RecordSource])
}

func (s *RecordRepoTestSuite) TestAddChange() {
	author := uuid.New()
	c := &record.Change{TreeID: 1, Xref: "I1", OldGedcom: "", NewGedcom: "0 @I1@ INDI\n", Author: author}

	s.mock.ExpectQuery("INSERT INTO changes").
		WithArgs(int64(1), "I1", "", "0 @I1@ INDI\n", author).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(55), time.Now()))

	s.NoError(s.repo.AddChange(context.Background(), c))
	s.Equal(int64(55), c.ID)
}

func (s *RecordRepoTestSuite) TestListChanges_DefaultLimit() {
	author := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "tree_id", "xref", "old_gedcom", "new_gedcom", "author", "created_at"}).
		AddRow(int64(2), int64(1), "I1", "old", "new", author.String(), time.Now()).
		AddRow(int64(1), int64(1), "I1", "", "old", author.String(), time.Now())
	s.mock.ExpectQuery("FROM changes").
		WithArgs(int64(1), "I1", 20).
		WillReturnRows(rows)

	changes, err := s.repo.ListChanges(context.Background(), 1, "I1", 0)
	s.NoError(err)
	s.Require().Len(changes, 2)
	s.Equal(author, changes[0].Author)
	s.Equal("new", changes[0].NewGedcom)
}

func (s *RecordRepoTestSuite) TestWithTx_CommitsOnSuccess() {
	rec := &record.Record{TreeID: 1, Xref: "I9", Type: gedcom.RecordIndividual, Gedcom: "0 @I9@ INDI\n"}

	s.mock.ExpectBegin()
	s.mock.ExpectQuery("INSERT INTO records").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(1), time.Now(), time.Now()))
	s.mock.ExpectCommit()

	err := s.repo.WithTx(context.Background(), func(txRepo record.RecordRepository) error {
		return txRepo.Create(context.Background(), rec)
	})
	s.NoError(err)
}

func (s *RecordRepoTestSuite) TestWithTx_RollsBackOnError() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery("INSERT INTO records").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "records_tree_xref_key"})
	s.mock.ExpectRollback()

	err := s.repo.WithTx(context.Background(), func(txRepo record.RecordRepository) error {
		return txRepo.Create(context.Background(), &record.Record{TreeID: 1, Xref: "I9"})
	})
	s.True(errors.IsCode(err, errors.ErrCodeDuplicateXref))
}

func TestRecordRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RecordRepoTestSuite))
}
