package taxi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRegisterAndGet(t *testing.T) {
	p := NewPool("fleet-1")
	tx := New("taxi-1", "fleet-1", 3600, nil)
	p.RegisterTaxi(tx)

	got, ok := p.Get("taxi-1")
	require.True(t, ok)
	assert.Equal(t, tx.InstanceID, got.InstanceID)
}

func TestPoolRegisterReplacesOnSameName(t *testing.T) {
	p := NewPool("fleet-1")
	first := New("taxi-1", "fleet-1", 3600, nil)
	p.RegisterTaxi(first)

	second := New("taxi-1", "fleet-1", 1800, nil)
	p.RegisterTaxi(second)

	got, ok := p.Get("taxi-1")
	require.True(t, ok)
	assert.Equal(t, second.InstanceID, got.InstanceID)
}

func TestPoolUpdateTaxiDispatch(t *testing.T) {
	p := NewPool("fleet-1")
	tx := New("taxi-1", "fleet-1", 3600, nil)
	p.RegisterTaxi(tx)
	p.UpdateTaxiDispatch(tx, "/data/fleet-1.db")

	path, ok := p.StorePathFor("taxi-1")
	require.True(t, ok)
	assert.Equal(t, "/data/fleet-1.db", path)
}

func TestPoolGetMissingTaxi(t *testing.T) {
	p := NewPool("fleet-1")
	_, ok := p.Get("nonexistent")
	assert.False(t, ok)
}
