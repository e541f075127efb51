package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

func TestRegisterEquipment(t *testing.T) {
	eng := newTestEngine(t)

	// Only registered manufacturers may register equipment.
	_, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))

	first, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	second, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindB, testDocHash)
	require.NoError(t, err)

	// Dense sequential ids starting at 1.
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)
	assert.Equal(t, uint64(2), eng.Catalog.EquipmentCount())

	eq, err := eng.Catalog.EquipmentDetails(second)
	require.NoError(t, err)
	assert.Equal(t, interfaces.KindB, eq.Kind)
	assert.Equal(t, manufacturer, eq.Manufacturer)
	assert.Equal(t, testDocHash, eq.DocHash)
	assert.False(t, eq.RegisteredAt.IsZero())

	_, err = eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, "")
	assert.Error(t, err)
}

func TestEquipmentDetailsNotFound(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Catalog.EquipmentDetails(1)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
	_, err = eng.Catalog.EquipmentDetails(0)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestListEquipmentByManufacturer(t *testing.T) {
	eng := newTestEngine(t)
	other := testAddr(0x11)
	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, other))

	_, err := eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	_, err = eng.Catalog.RegisterEquipment(other, interfaces.KindA, testDocHash)
	require.NoError(t, err)
	_, err = eng.Catalog.RegisterEquipment(manufacturer, interfaces.KindB, testDocHash)
	require.NoError(t, err)

	mine := eng.Catalog.ListEquipmentByManufacturer(manufacturer)
	require.Len(t, mine, 2)
	assert.Equal(t, uint64(1), mine[0].ID)
	assert.Equal(t, uint64(3), mine[1].ID)

	assert.Empty(t, eng.Catalog.ListEquipmentByManufacturer(stranger))
}
