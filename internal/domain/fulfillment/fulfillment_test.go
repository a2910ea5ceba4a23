package fulfillment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaps() Capabilities {
	return Capabilities{
		Modes: []Type{TypePickup, TypeDelivery, TypeMeetupPoint},
		DeliveryOptions: []DeliveryOption{
			{ID: "std", Name: "Estándar", Price: decimal.NewFromInt(50)},
			{ID: "exp", Name: "Express", Price: decimal.NewFromInt(120)},
		},
		MeetupPointIDs: []string{"mp-1", "mp-2"},
	}
}

func TestMachine_GuardRejectsDisabledMode(t *testing.T) {
	m := NewMachine(testCaps())

	require.NoError(t, m.Select(TypePickup))
	err := m.Select(TypeCourierExterno)
	require.ErrorIs(t, err, ErrModeNotEnabled)

	// Rejected transition leaves the state unchanged.
	assert.Equal(t, TypePickup, m.State())
}

func TestMachine_DeliveryRequiresTier(t *testing.T) {
	m := NewMachine(testCaps())
	require.NoError(t, m.Select(TypeDelivery))

	_, err := m.Selection(false)
	require.ErrorIs(t, err, ErrDeliveryOptionRequired)

	// Free shipping relaxes the tier requirement.
	sel, err := m.Selection(true)
	require.NoError(t, err)
	assert.Equal(t, TypeDelivery, sel.Type)
	assert.Nil(t, sel.DeliveryOption)

	require.NoError(t, m.ChooseDeliveryOption("exp"))
	sel, err = m.Selection(false)
	require.NoError(t, err)
	require.NotNil(t, sel.DeliveryOption)
	assert.Equal(t, "exp", sel.DeliveryOption.ID)
}

func TestMachine_UnknownDeliveryOption(t *testing.T) {
	m := NewMachine(testCaps())
	require.NoError(t, m.Select(TypeDelivery))
	require.ErrorIs(t, m.ChooseDeliveryOption("same-day"), ErrUnknownDeliveryOption)
}

func TestMachine_MeetupPointRequired(t *testing.T) {
	m := NewMachine(testCaps())
	require.NoError(t, m.Select(TypeMeetupPoint))

	_, err := m.Selection(false)
	require.ErrorIs(t, err, ErrMeetupPointRequired)

	require.ErrorIs(t, m.ChooseMeetupPoint("mp-9"), ErrUnknownMeetupPoint)

	require.NoError(t, m.ChooseMeetupPoint("mp-2"))
	sel, err := m.Selection(false)
	require.NoError(t, err)
	assert.Equal(t, "mp-2", sel.MeetupPointID)
}

func TestMachine_SwitchingModeClearsSecondarySelection(t *testing.T) {
	m := NewMachine(testCaps())
	require.NoError(t, m.Select(TypeDelivery))
	require.NoError(t, m.ChooseDeliveryOption("std"))

	require.NoError(t, m.Select(TypeMeetupPoint))
	require.NoError(t, m.Select(TypeDelivery))

	_, err := m.Selection(false)
	require.ErrorIs(t, err, ErrDeliveryOptionRequired)
}

func TestMachine_UnselectedBlocksSubmission(t *testing.T) {
	m := NewMachine(testCaps())
	_, err := m.Selection(false)
	require.ErrorIs(t, err, ErrUnselected)
}

func TestMachine_SecondarySelectionOutsideState(t *testing.T) {
	m := NewMachine(testCaps())
	require.NoError(t, m.Select(TypePickup))

	require.Error(t, m.ChooseDeliveryOption("std"))
	require.Error(t, m.ChooseMeetupPoint("mp-1"))
}
