package budget

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-agent/internal/intent"
)

func TestSQLCostRecorder_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	recorder := NewSQLCostRecorder(db)
	entry := CostLog{
		TenantID:  "biz-1",
		AmountUSD: 0.0035,
		Model:     "gpt-4o",
		Tier:      intent.TierCapable,
		TokensIn:  1000,
		TokensOut: 100,
		Label:     "booking",
	}

	mock.ExpectExec("INSERT INTO cost_logs").
		WithArgs("biz-1", 0.0035, "gpt-4o", "capable", 1000, 100, "booking").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, recorder.Record(context.Background(), entry))

	mock.ExpectExec("INSERT INTO cost_logs").
		WillReturnError(errors.New("disk full"))
	err = recorder.Record(context.Background(), entry)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "budget: insert cost log")

	assert.NoError(t, mock.ExpectationsWereMet())
}
