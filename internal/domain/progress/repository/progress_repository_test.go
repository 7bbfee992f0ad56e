package repository

import (
	"context"
	"testing"
	"time"

	"loyalty_wallet/internal/pkg/errs"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDB 基于 sqlmock 的 gorm 会话，正则匹配 SQL
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gdb, mock
}

func progressColumns() []string {
	return []string{
		"id", "created_at", "updated_at", "deleted_at",
		"customer_id", "offer_id", "business_id",
		"current_stamps", "max_stamps", "is_completed", "rewards_claimed",
		"last_scan_at", "expires_at",
	}
}

func progressRow(id string, current, max int, completed bool, claimed int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(progressColumns()).
		AddRow(id, now, now, nil, "cust-1", "offer-1", "biz-1", current, max, completed, claimed, nil, nil)
}

func TestAddStampClampsAtMax(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewProgressRepository(gdb)

	// 锁定读：还差 1 点就满
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "customer_progress" .*FOR UPDATE`).
		WillReturnRows(progressRow("prog-1", 4, 5, false, 0))

	// 即使一次发 3 点也只封顶到 5，并翻转完成位
	mock.ExpectExec(`UPDATE "customer_progress" SET`).
		WithArgs(5, true, sqlmock.AnyArg(), sqlmock.AnyArg(), "prog-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// 提交后重读规范快照
	mock.ExpectQuery(`SELECT \* FROM "customer_progress"`).
		WillReturnRows(progressRow("prog-1", 5, 5, true, 0))

	snapshot, rewardEarned, err := repo.AddStamp(context.Background(), "cust-1", "offer-1", 3)

	require.NoError(t, err)
	assert.True(t, rewardEarned)
	assert.Equal(t, 5, snapshot.CurrentStamps)
	assert.True(t, snapshot.IsCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStampNoOpWhenCompleted(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewProgressRepository(gdb)

	// 已攒满待核销：事务内不做任何写入
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "customer_progress" .*FOR UPDATE`).
		WillReturnRows(progressRow("prog-1", 5, 5, true, 2))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT \* FROM "customer_progress"`).
		WillReturnRows(progressRow("prog-1", 5, 5, true, 2))

	snapshot, rewardEarned, err := repo.AddStamp(context.Background(), "cust-1", "offer-1", 1)

	require.NoError(t, err)
	assert.False(t, rewardEarned)
	assert.True(t, snapshot.IsCompleted)
	assert.Equal(t, 5, snapshot.CurrentStamps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddStampNormalAccrual(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewProgressRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "customer_progress" .*FOR UPDATE`).
		WillReturnRows(progressRow("prog-1", 1, 5, false, 0))
	mock.ExpectExec(`UPDATE "customer_progress" SET`).
		WithArgs(2, false, sqlmock.AnyArg(), sqlmock.AnyArg(), "prog-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT \* FROM "customer_progress"`).
		WillReturnRows(progressRow("prog-1", 2, 5, false, 0))

	snapshot, rewardEarned, err := repo.AddStamp(context.Background(), "cust-1", "offer-1", 1)

	require.NoError(t, err)
	assert.False(t, rewardEarned)
	assert.Equal(t, 2, snapshot.CurrentStamps)
	assert.False(t, snapshot.IsCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimRewardRequiresCompletion(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewProgressRepository(gdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "customer_progress" .*FOR UPDATE`).
		WillReturnRows(progressRow("prog-1", 3, 5, false, 0))
	mock.ExpectRollback()

	_, err := repo.ClaimReward(context.Background(), "cust-1", "offer-1", "staff", "")

	assert.ErrorIs(t, err, errs.ErrNotCompleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClaims(t *testing.T) {
	gdb, mock := newMockDB(t)
	repo := NewProgressRepository(gdb)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "reward_claims"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	now := time.Now()
	mock.ExpectQuery(`SELECT \* FROM "reward_claims"`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "created_at", "updated_at", "deleted_at",
			"progress_id", "customer_id", "offer_id", "cycle", "claimed_by", "notes", "claimed_at",
		}).
			AddRow("claim-2", now, now, nil, "prog-1", "cust-1", "offer-1", 2, "staff", "", now).
			AddRow("claim-1", now, now, nil, "prog-1", "cust-1", "offer-1", 1, "staff", "", now.Add(-time.Hour)))

	claims, total, err := repo.GetClaims(context.Background(), "cust-1", "offer-1", 0, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, claims, 2)
	assert.Equal(t, 2, claims[0].Cycle)
	assert.NoError(t, mock.ExpectationsWereMet())
}
