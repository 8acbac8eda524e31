package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omxlab/equityrun/internal/domain/market"
)

func ptr[T any](v T) *T { return &v }

func TestSnapshotsUpsert_BindsNullableIndicators(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotsRepo(db, 5*time.Second)

	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	snap := market.TechnicalSnapshot{
		Instrument:  "VOLV-B.ST",
		Date:        date,
		RSI14:       ptr(58.2),
		SMA20:       ptr(251.4),
		VolumeRatio: 1.1,
		// SMA50 and pattern stay null: short history, no detection
	}

	mock.ExpectExec("INSERT INTO technical_snapshots").
		WithArgs("VOLV-B.ST", date, 58.2, 251.4, nil, 1.1, 0.0, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotsLatest_NoRowsIsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnapshotsRepo(db, 5*time.Second)

	mock.ExpectQuery("SELECT instrument, date, rsi14").
		WithArgs("GHOST.ST").
		WillReturnRows(sqlmock.NewRows([]string{"instrument"}))

	snap, err := repo.Latest(context.Background(), "GHOST.ST")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestBacktestAppend(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBacktestRepo(db, 5*time.Second)

	result := market.BacktestResult{
		Strategy:       "golden_cross_sma20_sma50",
		PeriodStart:    time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		TradesCount:    7,
		WinRate:        57.1,
		TotalReturnPct: 12.4,
		AvgTradePct:    1.77,
		MaxDrawdownPct: -6.2,
		CreatedAt:      time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO backtest_results").WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, repo.Append(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMacroLatestPerSymbol(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMacroRepo(db, 5*time.Second)

	date := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"symbol", "value", "change_pct", "date"}).
		AddRow("CL=F", 71.2, -1.8, date).
		AddRow("^OMX", 2601.5, 0.4, date)
	mock.ExpectQuery("SELECT DISTINCT ON \\(symbol\\)").WillReturnRows(rows)

	latest, err := repo.LatestPerSymbol(context.Background())
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.InDelta(t, -1.8, latest["CL=F"].ChangePct, 1e-9)
}
