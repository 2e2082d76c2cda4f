package store

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustField(t *testing.T, payload []byte, key string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &m))
	return m[key]
}

func TestIllegalTransitionError_Message(t *testing.T) {
	err := &IllegalTransitionError{Command: domain.CommandCancel, From: domain.StatusCompleted}
	assert.Equal(t, "cannot cancel an order in status Completed, only Pending or Processing orders", err.Error())

	err = &IllegalTransitionError{Command: domain.CommandConfirm, From: domain.StatusProcessing}
	assert.Equal(t, "cannot confirm an order in status Processing, only Pending orders", err.Error())
}

func TestMergeItems(t *testing.T) {
	items, err := mergeItems([]NewOrderItem{
		{MedicineID: 2, Quantity: 1},
		{MedicineID: 1, Quantity: 2},
		{MedicineID: 2, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []NewOrderItem{{MedicineID: 2, Quantity: 4}, {MedicineID: 1, Quantity: 2}}, items)

	_, err = mergeItems([]NewOrderItem{{MedicineID: 1, Quantity: -1}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

type stubResult struct {
	rows int64
	err  error
}

func (r stubResult) LastInsertId() (int64, error) { return 0, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rows, r.err }

func TestCheckTransitioned(t *testing.T) {
	cmd, from := domain.CommandConfirm, domain.StatusPending

	require.NoError(t, checkTransitioned(stubResult{rows: 1}, cmd, from))

	var illegal *IllegalTransitionError
	err := checkTransitioned(stubResult{rows: 0}, cmd, from)
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, from, illegal.From)

	driverErr := errors.New("driver: bad connection")
	err = checkTransitioned(stubResult{err: driverErr}, cmd, from)
	require.ErrorIs(t, err, driverErr)
	assert.False(t, errors.As(err, &illegal), "a driver failure is not an illegal transition")
}
