package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certeq/equipment-certification-backend/interfaces"
)

func TestRegisterManufacturer(t *testing.T) {
	eng := newTestEngine(t)

	assert.ErrorIs(t, eng.Identity.RegisterManufacturer(stranger, manufacturer), interfaces.ErrUnauthorized)
	assert.False(t, eng.Identity.IsManufacturer(manufacturer))

	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	assert.True(t, eng.Identity.IsManufacturer(manufacturer))

	// Re-registration is a no-op success.
	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))

	// An address serving as a CAB cannot double as a manufacturer.
	setupAccreditedCAB(t, eng, "cab-one", cabOne)
	assert.ErrorIs(t, eng.Identity.RegisterManufacturer(registrar, cabOne), interfaces.ErrDuplicateIdentity)

	assert.Error(t, eng.Identity.RegisterManufacturer(registrar, interfaces.Principal{}))
}

func TestRegisterCAB(t *testing.T) {
	eng := newTestEngine(t)

	assert.ErrorIs(t, eng.Identity.RegisterCAB(stranger, "cab-one", cabOne), interfaces.ErrUnauthorized)

	assert.False(t, eng.Identity.IsCAB(cabOne))
	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-one", cabOne))
	info, err := eng.Identity.CABDetails(cabOne)
	require.NoError(t, err)
	assert.Equal(t, "cab-one", info.Name)
	assert.False(t, info.Accredited)
	assert.True(t, eng.Identity.IsCAB(cabOne))
	assert.False(t, eng.Identity.IsAccreditedCAB(cabOne))

	assert.ErrorIs(t, eng.Identity.RegisterCAB(registrar, "again", cabOne), interfaces.ErrDuplicateIdentity)

	require.NoError(t, eng.Identity.RegisterManufacturer(registrar, manufacturer))
	assert.ErrorIs(t, eng.Identity.RegisterCAB(registrar, "conflict", manufacturer), interfaces.ErrDuplicateIdentity)

	assert.Error(t, eng.Identity.RegisterCAB(registrar, "", cabTwo))
}

func TestUpdateCABDetails(t *testing.T) {
	eng := newTestEngine(t)

	assert.ErrorIs(t, eng.Identity.UpdateCABDetails(cabOne, testDocHash), interfaces.ErrNotRegistered)

	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-one", cabOne))
	require.NoError(t, eng.Identity.UpdateCABDetails(cabOne, testDocHash))

	info, err := eng.Identity.CABDetails(cabOne)
	require.NoError(t, err)
	assert.Equal(t, testDocHash, info.Details)

	assert.Error(t, eng.Identity.UpdateCABDetails(cabOne, ""))
}

func TestAccreditCAB(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-one", cabOne))

	assert.ErrorIs(t, eng.Identity.AccreditCAB(stranger, cabOne, true), interfaces.ErrUnauthorized)
	assert.ErrorIs(t, eng.Identity.AccreditCAB(registrar, cabTwo, true), interfaces.ErrNotRegistered)
	assert.False(t, eng.Identity.IsAccreditedCAB(cabOne))

	require.NoError(t, eng.Identity.AccreditCAB(registrar, cabOne, true))
	assert.True(t, eng.Identity.IsAccreditedCAB(cabOne))

	// Accreditation can be withdrawn.
	require.NoError(t, eng.Identity.AccreditCAB(registrar, cabOne, false))
	assert.False(t, eng.Identity.IsAccreditedCAB(cabOne))
}

func TestListCABsOrder(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-one", cabOne))
	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-two", cabTwo))
	require.NoError(t, eng.Identity.RegisterCAB(registrar, "cab-three", cabThree))

	cabs := eng.Identity.ListCABs()
	require.Len(t, cabs, 3)
	assert.Equal(t, []string{"cab-one", "cab-two", "cab-three"},
		[]string{cabs[0].Name, cabs[1].Name, cabs[2].Name})
}

func TestCABDetailsNotFound(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Identity.CABDetails(cabOne)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
