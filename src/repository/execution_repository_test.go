package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"positionledger/src/database/dbtest"
	"positionledger/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return gormDB, mock
}

func execution(orderID string, seq int) *model.ExecutionRecord {
	return &model.ExecutionRecord{
		OrderID:          orderID,
		BrokerAccountID:  "ACC-1",
		Symbol:           "THYAO",
		Side:             model.OrderSideBuy,
		ExecutedQuantity: d("100"),
		ExecutionPrice:   d("15.50"),
		ExecutionTime:    time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		FillSequence:     seq,
		LiquidityFlag:    model.LiquidityUnknown,
		SettlementStatus: model.SettlementPending,
	}
}

func TestExecutionRepository_NextFillSequence_Query(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExecutionRepository{}).WithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(fill_sequence), 0) FROM "execution_records" WHERE order_id = $1`)).
		WithArgs("ORD-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))

	next, err := repo.NextFillSequence(context.Background(), "ORD-1")
	require.NoError(t, err)
	require.Equal(t, 4, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_NextFillSequence_PropagatesError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExecutionRepository{}).WithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(MAX(fill_sequence), 0) FROM "execution_records"`)).
		WillReturnError(errors.New("boom"))

	_, err := repo.NextFillSequence(context.Background(), "ORD-1")
	require.Error(t, err)
}

func TestExecutionRepository_ListByOrder_Query(t *testing.T) {
	db, mock := newMockDB(t)
	repo := (&ExecutionRepository{}).WithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "execution_records" WHERE order_id = $1 ORDER BY fill_sequence ASC`)).
		WithArgs("ORD-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "fill_sequence"}).
			AddRow(1, "ORD-9", 1).
			AddRow(2, "ORD-9", 2))

	recs, err := repo.ListByOrder(context.Background(), "ORD-9")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, 1, recs[0].FillSequence)
	require.Equal(t, 2, recs[1].FillSequence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionRepository_SequencesAndUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := (&ExecutionRepository{}).WithDB(dbtest.New(t))

	next, err := repo.NextFillSequence(ctx, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, 1, next)

	first := execution("ORD-1", 1)
	first.ExecutionID = strPtr("EX-1")
	require.NoError(t, repo.Create(ctx, first))

	next, err = repo.NextFillSequence(ctx, "ORD-1")
	require.NoError(t, err)
	require.Equal(t, 2, next)

	// another order starts its own sequence
	next, err = repo.NextFillSequence(ctx, "ORD-2")
	require.NoError(t, err)
	require.Equal(t, 1, next)

	err = repo.Create(ctx, execution("ORD-1", 1))
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey, "sequence must be unique per order")

	dup := execution("ORD-3", 1)
	dup.ExecutionID = strPtr("EX-1")
	err = repo.Create(ctx, dup)
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey, "execution id must be unique")

	// fills without a broker id never collide
	require.NoError(t, repo.Create(ctx, execution("ORD-4", 1)))
	require.NoError(t, repo.Create(ctx, execution("ORD-4", 2)))

	found, err := repo.FindByExecutionID(ctx, "EX-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "ORD-1", found.OrderID)
	require.True(t, found.ExecutedQuantity.Equal(d("100")))

	missing, err := repo.FindByExecutionID(ctx, "EX-404")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestExecutionRecord_DerivedAmounts(t *testing.T) {
	rec := model.ExecutionRecord{
		Side:             model.OrderSideSell,
		ExecutedQuantity: d("400"),
		ExecutionPrice:   d("15.75"),
		Commission:       d("2"),
		ExchangeFee:      d("0.5"),
		ClearingFee:      d("0.3"),
		OtherFees:        d("0.2"),
	}

	require.True(t, rec.ExecutionValue().Equal(d("6300")))
	require.True(t, rec.TotalFees().Equal(d("3")))
	require.True(t, rec.NetAmount().Equal(d("6297")))
	require.True(t, rec.PerUnitFee().Equal(d("0.0075")))
	require.True(t, rec.EffectivePrice().Equal(d("15.7425")))

	rec.Side = model.OrderSideBuy
	require.True(t, rec.EffectivePrice().Equal(d("15.7575")))
}

func TestExecutionRepository_AttachPosition(t *testing.T) {
	ctx := context.Background()
	repo := (&ExecutionRepository{}).WithDB(dbtest.New(t))

	rec := execution("ORD-1", 1)
	rec.ExecutionID = strPtr("EX-1")
	require.NoError(t, repo.Create(ctx, rec))
	require.Zero(t, rec.PositionID)

	require.NoError(t, repo.AttachPosition(ctx, rec.ID, 42))

	found, err := repo.FindByExecutionID(ctx, "EX-1")
	require.NoError(t, err)
	require.Equal(t, uint(42), found.PositionID)
	require.Equal(t, 1, found.FillSequence)

	// a linked fill is never moved to another position
	require.ErrorIs(t, repo.AttachPosition(ctx, rec.ID, 43), ErrExecutionAttached)
}
