package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableRejectsRaggedRows(t *testing.T) {
	_, err := NewTable([]string{"a", "b"}, [][]any{{1, 2}, {3}})
	require.Error(t, err)

	table, err := NewTable([]string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.NotNil(t, table.Rows)
}

func TestCloneIsIndependent(t *testing.T) {
	table, err := NewTable([]string{"code", "price"}, [][]any{{"600000", 10.5}})
	require.NoError(t, err)

	clone := table.Clone()
	clone.Rows[0][1] = 11.0

	assert.Equal(t, 10.5, table.Rows[0][1])
	assert.Equal(t, 1, table.Column("price"))
	assert.Equal(t, -1, table.Column("missing"))
}

func TestCellFloat(t *testing.T) {
	row := []any{"600000", "12.50", 300, nil}

	v, err := CellFloat(row, 1)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = CellFloat(row, 2)
	require.NoError(t, err)
	assert.Equal(t, 300.0, v)

	_, err = CellFloat(row, 0)
	require.NoError(t, err)

	v, err = CellFloat(row, -2)
	require.NoError(t, err)
	assert.Equal(t, 300.0, v)

	_, err = CellFloat(row, 9)
	assert.Error(t, err)

	_, err = CellFloat([]any{"n/a"}, 0)
	assert.Error(t, err)
}

func TestCellString(t *testing.T) {
	row := []any{600000, "浦发银行"}
	assert.Equal(t, "600000", CellString(row, 0))
	assert.Equal(t, "浦发银行", CellString(row, -1))
	assert.Equal(t, "", CellString(row, 5))
}
