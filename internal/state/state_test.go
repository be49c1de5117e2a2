package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/lightseq/internal/db"
)

type label struct {
	Name string `json:"name"`
}

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestStore_SetGetVersion(t *testing.T) {
	s := openStore(t)

	payload, version, err := s.Get("k", "a")
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Zero(t, version)

	require.NoError(t, s.Set("k", "a", []byte(`{"x":1}`)))
	require.NoError(t, s.Set("k", "a", []byte(`{"x":2}`)))

	payload, version, err = s.Get("k", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":2}`, string(payload))
	assert.Equal(t, int64(2), version)

	require.NoError(t, s.Delete("k", "a"))
	payload, _, err = s.Get("k", "a")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestTypedStore(t *testing.T) {
	names := NewTypedStore[label](openStore(t), "device_name")
	assert.Equal(t, "device_name", names.Kind())

	require.NoError(t, names.Set("10.0.0.1", label{Name: "Desk"}))
	require.NoError(t, names.Set("10.0.0.2", label{Name: "Shelf"}))

	got, version, err := names.Get("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Desk", got.Name)
	assert.Equal(t, int64(1), version)

	all, err := names.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]label{"10.0.0.1": {Name: "Desk"}, "10.0.0.2": {Name: "Shelf"}}, all)

	missing, version, err := names.Get("nope")
	require.NoError(t, err)
	assert.Equal(t, label{}, missing)
	assert.Zero(t, version)
}
