package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"expenses/internal/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// RepositoryTestSuite runs the store contract against one dialect.
type RepositoryTestSuite struct {
	suite.Suite
	dialect Dialect
	dsn     func(t *testing.T) string
	repo    *Repository
	ctx     context.Context
	clock   time.Time
	alice   core.User
	bob     core.User
}

func TestSQLiteRepository(t *testing.T) {
	suite.Run(t, &RepositoryTestSuite{
		dialect: SQLite,
		dsn: func(t *testing.T) string {
			return filepath.Join(t.TempDir(), "expenses.db")
		},
	})
}

func TestPostgresRepository(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}
	suite.Run(t, &RepositoryTestSuite{dialect: Postgres, dsn: func(*testing.T) string { return dsn }})
}

func TestMySQLRepository(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	suite.Run(t, &RepositoryTestSuite{dialect: MySQL, dsn: func(*testing.T) string { return dsn }})
}

// SetupTest runs before each test
func (suite *RepositoryTestSuite) SetupTest() {
	suite.ctx = context.Background()
	repo, err := Open(suite.ctx, suite.dialect, suite.dsn(suite.T()))
	require.NoError(suite.T(), err, "failed to open test database")
	suite.repo = repo

	// Shared databases keep rows between tests
	_, err = repo.db.ExecContext(suite.ctx, "DELETE FROM expenses")
	require.NoError(suite.T(), err)
	_, err = repo.db.ExecContext(suite.ctx, "DELETE FROM users")
	require.NoError(suite.T(), err)

	suite.clock = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	suite.alice = suite.createUser("alice@example.com")
	suite.bob = suite.createUser("bob@example.com")
}

// TearDownTest runs after each test
func (suite *RepositoryTestSuite) TearDownTest() {
	if suite.repo != nil {
		suite.repo.Close()
	}
}

func (suite *RepositoryTestSuite) tick() time.Time {
	suite.clock = suite.clock.Add(time.Second)
	return suite.clock
}

func (suite *RepositoryTestSuite) createUser(email string) core.User {
	u := core.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    suite.tick(),
	}
	require.NoError(suite.T(), suite.repo.CreateUser(suite.ctx, u))
	return u
}

func (suite *RepositoryTestSuite) createExpense(owner core.User, cents int64, category string, d core.Date, note *string) core.Expense {
	now := suite.tick()
	e := core.Expense{
		ID:        uuid.NewString(),
		UserID:    owner.ID,
		Amount:    core.Money{Cents: cents},
		Category:  category,
		Date:      d,
		Note:      note,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(suite.T(), suite.repo.CreateExpense(suite.ctx, e))
	return e
}

func (suite *RepositoryTestSuite) list(f core.ListFilter) ([]core.Expense, int64) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = 10
	}
	items, total, err := suite.repo.ListExpenses(suite.ctx, f)
	require.NoError(suite.T(), err)
	return items, total
}

func strPtr(s string) *string { return &s }

func (suite *RepositoryTestSuite) TestCreateAndListRoundTrip() {
	created := suite.createExpense(suite.alice, 4250, "Food", core.NewDate(2024, 3, 1), strPtr("lunch"))

	items, total := suite.list(core.ListFilter{UserID: suite.alice.ID})
	require.Len(suite.T(), items, 1)
	assert.Equal(suite.T(), int64(1), total)

	got := items[0]
	assert.Equal(suite.T(), created.ID, got.ID)
	assert.Equal(suite.T(), suite.alice.ID, got.UserID)
	assert.Equal(suite.T(), int64(4250), got.Amount.Cents)
	assert.Equal(suite.T(), "Food", got.Category)
	assert.Equal(suite.T(), "2024-03-01", got.Date.String())
	require.NotNil(suite.T(), got.Note)
	assert.Equal(suite.T(), "lunch", *got.Note)
	assert.True(suite.T(), created.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", created.CreatedAt, got.CreatedAt)
}

func (suite *RepositoryTestSuite) TestListIsScopedToOwner() {
	suite.createExpense(suite.alice, 100, "Food", core.NewDate(2024, 3, 1), nil)
	suite.createExpense(suite.bob, 200, "Food", core.NewDate(2024, 3, 1), nil)

	items, total := suite.list(core.ListFilter{UserID: suite.bob.ID})
	require.Len(suite.T(), items, 1)
	assert.Equal(suite.T(), int64(1), total)
	assert.Equal(suite.T(), suite.bob.ID, items[0].UserID)
}

func (suite *RepositoryTestSuite) TestListPaginationAndOrder() {
	for day := 1; day <= 15; day++ {
		suite.createExpense(suite.alice, int64(day*100), "Food", core.NewDate(2024, 3, day), nil)
	}

	items, total := suite.list(core.ListFilter{UserID: suite.alice.ID, Page: 2, Limit: 10})
	assert.Equal(suite.T(), int64(15), total)
	require.Len(suite.T(), items, 5)
	for i := 1; i < len(items); i++ {
		assert.False(suite.T(), items[i].Date.After(items[i-1].Date.Time), "dates must be descending")
	}
	assert.Equal(suite.T(), "2024-03-05", items[0].Date.String())
	assert.Equal(suite.T(), "2024-03-01", items[4].Date.String())

	items, total = suite.list(core.ListFilter{UserID: suite.alice.ID, Page: 5, Limit: 10})
	assert.Equal(suite.T(), int64(15), total)
	assert.Empty(suite.T(), items)
}

func (suite *RepositoryTestSuite) TestListTiesBreakOnCreation() {
	first := suite.createExpense(suite.alice, 100, "Food", core.NewDate(2024, 3, 1), nil)
	second := suite.createExpense(suite.alice, 200, "Food", core.NewDate(2024, 3, 1), nil)

	items, _ := suite.list(core.ListFilter{UserID: suite.alice.ID})
	require.Len(suite.T(), items, 2)
	assert.Equal(suite.T(), second.ID, items[0].ID)
	assert.Equal(suite.T(), first.ID, items[1].ID)
}

func (suite *RepositoryTestSuite) TestListFilters() {
	suite.createExpense(suite.alice, 100, "Food", core.NewDate(2024, 2, 28), nil)
	suite.createExpense(suite.alice, 200, "Food", core.NewDate(2024, 3, 1), nil)
	suite.createExpense(suite.alice, 300, "Travel", core.NewDate(2024, 3, 15), nil)
	suite.createExpense(suite.alice, 400, "Food", core.NewDate(2024, 3, 31), nil)
	suite.createExpense(suite.alice, 500, "Food", core.NewDate(2024, 4, 1), nil)

	start := core.NewDate(2024, 3, 1)
	end := core.NewDate(2024, 3, 31)

	cases := []struct {
		name   string
		filter core.ListFilter
		want   []int64
	}{
		{"category", core.ListFilter{Category: "Travel"}, []int64{300}},
		{"category is exact", core.ListFilter{Category: "food"}, nil},
		{"start bound inclusive", core.ListFilter{StartDate: &end}, []int64{500, 400}},
		{"end bound inclusive", core.ListFilter{EndDate: &start}, []int64{200, 100}},
		{"range and category", core.ListFilter{Category: "Food", StartDate: &start, EndDate: &end}, []int64{400, 200}},
	}
	for _, tc := range cases {
		suite.Run(tc.name, func() {
			f := tc.filter
			f.UserID = suite.alice.ID
			items, total := suite.list(f)
			assert.Equal(suite.T(), int64(len(tc.want)), total)
			var got []int64
			for _, e := range items {
				got = append(got, e.Amount.Cents)
			}
			assert.Equal(suite.T(), tc.want, got)
		})
	}
}

func (suite *RepositoryTestSuite) TestSummarize() {
	suite.createExpense(suite.alice, 1000, "Food", core.NewDate(2024, 3, 1), nil)
	suite.createExpense(suite.alice, 550, "Food", core.NewDate(2024, 3, 2), nil)
	suite.createExpense(suite.alice, 20000, "Travel", core.NewDate(2024, 3, 3), nil)
	suite.createExpense(suite.bob, 9999, "Food", core.NewDate(2024, 3, 3), nil)

	sum, err := suite.repo.SummarizeExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), core.Summary{
		"Food":   {Cents: 1550},
		"Travel": {Cents: 20000},
	}, sum)

	empty, err := suite.repo.SummarizeExpenses(suite.ctx, uuid.NewString())
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), empty)
}

func (suite *RepositoryTestSuite) TestUpdatePartial() {
	e := suite.createExpense(suite.alice, 1200, "Food", core.NewDate(2024, 3, 1), strPtr("lunch"))
	now := suite.tick()

	amount := core.Money{Cents: 1500}
	got, err := suite.repo.UpdateExpense(suite.ctx, e.ID, suite.alice.ID, core.ExpensePatch{Amount: &amount}, now)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1500), got.Amount.Cents)
	assert.Equal(suite.T(), "Food", got.Category)
	require.NotNil(suite.T(), got.Note)
	assert.Equal(suite.T(), "lunch", *got.Note)
	assert.True(suite.T(), got.UpdatedAt.Equal(now))
	assert.True(suite.T(), got.CreatedAt.Equal(e.CreatedAt))
}

func (suite *RepositoryTestSuite) TestUpdateNullNoteClears() {
	e := suite.createExpense(suite.alice, 1200, "Food", core.NewDate(2024, 3, 1), strPtr("lunch"))

	got, err := suite.repo.UpdateExpense(suite.ctx, e.ID, suite.alice.ID,
		core.ExpensePatch{Note: core.OptionalString{Set: true, Null: true}}, suite.tick())
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), got.Note)
	assert.Equal(suite.T(), int64(1200), got.Amount.Cents)
	assert.Equal(suite.T(), "Food", got.Category)
	assert.Equal(suite.T(), "2024-03-01", got.Date.String())
}

func (suite *RepositoryTestSuite) TestUpdateForeignOrMissing() {
	e := suite.createExpense(suite.alice, 1200, "Food", core.NewDate(2024, 3, 1), nil)
	category := "Hacked"
	patch := core.ExpensePatch{Category: &category}

	_, err := suite.repo.UpdateExpense(suite.ctx, e.ID, suite.bob.ID, patch, suite.tick())
	assert.ErrorIs(suite.T(), err, core.ErrNotFound)

	_, err = suite.repo.UpdateExpense(suite.ctx, uuid.NewString(), suite.alice.ID, patch, suite.tick())
	assert.ErrorIs(suite.T(), err, core.ErrNotFound)

	items, _ := suite.list(core.ListFilter{UserID: suite.alice.ID})
	require.Len(suite.T(), items, 1)
	assert.Equal(suite.T(), "Food", items[0].Category)
}

func (suite *RepositoryTestSuite) TestDelete() {
	e := suite.createExpense(suite.alice, 1200, "Food", core.NewDate(2024, 3, 1), nil)

	assert.ErrorIs(suite.T(), suite.repo.DeleteExpense(suite.ctx, e.ID, suite.bob.ID), core.ErrNotFound)
	require.NoError(suite.T(), suite.repo.DeleteExpense(suite.ctx, e.ID, suite.alice.ID))
	assert.ErrorIs(suite.T(), suite.repo.DeleteExpense(suite.ctx, e.ID, suite.alice.ID), core.ErrNotFound)

	_, total := suite.list(core.ListFilter{UserID: suite.alice.ID})
	assert.Zero(suite.T(), total)
}

func (suite *RepositoryTestSuite) TestUsers() {
	got, err := suite.repo.GetUserByEmail(suite.ctx, "alice@example.com")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.alice.ID, got.ID)
	assert.Equal(suite.T(), "hash", got.PasswordHash)
	assert.Nil(suite.T(), got.Name)

	got, err = suite.repo.GetUserByID(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "bob@example.com", got.Email)

	_, err = suite.repo.GetUserByEmail(suite.ctx, "nobody@example.com")
	assert.ErrorIs(suite.T(), err, core.ErrNotFound)

	dup := core.User{ID: uuid.NewString(), Email: "alice@example.com", PasswordHash: "x", CreatedAt: suite.tick()}
	assert.ErrorIs(suite.T(), suite.repo.CreateUser(suite.ctx, dup), core.ErrConflict)
}

func (suite *RepositoryTestSuite) TestPing() {
	assert.NoError(suite.T(), suite.repo.Ping(suite.ctx))
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM expenses WHERE user_id = ? AND id = ? LIMIT ?"
	assert.Equal(t, q, SQLite.rebind(q))
	assert.Equal(t, q, MySQL.rebind(q))
	assert.Equal(t, "SELECT * FROM expenses WHERE user_id = $1 AND id = $2 LIMIT $3", Postgres.rebind(q))
}

func TestParseDialect(t *testing.T) {
	for _, name := range []string{"sqlite", "Postgres", " mysql "} {
		_, err := ParseDialect(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseDialect("oracle")
	assert.Error(t, err)
}

func TestConnString(t *testing.T) {
	dsn, err := connString(MySQL, "user:pw@tcp(localhost:3306)/expenses", false)
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.NotContains(t, dsn, "multiStatements")

	dsn, err = connString(MySQL, "user:pw@tcp(localhost:3306)/expenses", true)
	require.NoError(t, err)
	assert.Contains(t, dsn, "multiStatements=true")

	dsn, err = connString(SQLite, "/tmp/x.db", false)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", "/tmp/x.db"), dsn)
}

func TestConnStringKeepsSQLiteQuery(t *testing.T) {
	dsn, err := connString(SQLite, "file:x.db?mode=rwc", false)
	require.NoError(t, err)
	assert.Equal(t, "file:x.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dsn)
}
