// Package fulfillment models how an order reaches the customer and the state
// machine the checkout uses to pick among the vendor's enabled modes.
package fulfillment

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates fulfillment modes.
type Type string

const (
	// TypeUnselected is the initial state before the customer picks a mode.
	TypeUnselected Type = ""
	// TypePickup means the customer collects at the store.
	TypePickup Type = "pickup"
	// TypeDelivery means standard home delivery by the vendor.
	TypeDelivery Type = "delivery"
	// TypeMeetupPoint means collection at a vendor-configured fixed location.
	TypeMeetupPoint Type = "meetup_point"
	// TypeCourierExterno means a third-party dispatched courier, billed
	// separately from standard delivery.
	TypeCourierExterno Type = "courier_externo"
)

// DeliveryOption is a vendor-defined delivery speed tier.
type DeliveryOption struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

// Capabilities is the vendor configuration the machine guards against.
type Capabilities struct {
	Modes           []Type
	DeliveryOptions []DeliveryOption
	MeetupPointIDs  []string
}

// Enabled reports whether the given mode is in the vendor's enabled set.
func (c Capabilities) Enabled(t Type) bool {
	for _, m := range c.Modes {
		if m == t {
			return true
		}
	}
	return false
}

func (c Capabilities) deliveryOption(id string) (DeliveryOption, bool) {
	for _, opt := range c.DeliveryOptions {
		if opt.ID == id {
			return opt, true
		}
	}
	return DeliveryOption{}, false
}

func (c Capabilities) hasMeetupPoint(id string) bool {
	for _, mp := range c.MeetupPointIDs {
		if mp == id {
			return true
		}
	}
	return false
}

// Selection is the settled fulfillment choice consumed by pricing and order
// composition.
type Selection struct {
	Type           Type
	DeliveryOption *DeliveryOption
	MeetupPointID  string
}

var (
	// ErrModeNotEnabled is returned when a transition targets a mode the
	// vendor has not enabled. The machine stays in its previous state.
	ErrModeNotEnabled = errors.New("fulfillment mode not enabled for this vendor")
	// ErrUnknownDeliveryOption is returned when the chosen speed tier is not
	// one of the vendor's configured options.
	ErrUnknownDeliveryOption = errors.New("unknown delivery option")
	// ErrUnknownMeetupPoint is returned when the chosen meetup point is not
	// in the vendor's configured list.
	ErrUnknownMeetupPoint = errors.New("unknown meetup point")
	// ErrDeliveryOptionRequired is returned by Selection when delivery is
	// active without a chosen speed tier and free shipping does not apply.
	ErrDeliveryOptionRequired = errors.New("delivery option required")
	// ErrMeetupPointRequired is returned by Selection when the meetup point
	// state is active without a concrete point chosen.
	ErrMeetupPointRequired = errors.New("meetup point required")
	// ErrUnselected is returned by Selection before any mode was chosen.
	ErrUnselected = errors.New("no fulfillment mode selected")
)

// Machine is the fulfillment selector: a state machine whose transitions are
// guarded by the vendor's capability set. The zero value is not usable;
// construct with NewMachine.
type Machine struct {
	caps   Capabilities
	state  Type
	option *DeliveryOption
	meetup string
}

// NewMachine returns a Machine in the Unselected state for the given vendor
// capabilities.
func NewMachine(caps Capabilities) *Machine {
	return &Machine{caps: caps, state: TypeUnselected}
}

// State returns the currently active mode.
func (m *Machine) State() Type {
	return m.state
}

// Select transitions to the given mode. The transition is rejected, leaving
// the state unchanged, when the vendor has not enabled the mode. Entering a
// new mode clears any secondary selection from the previous one.
func (m *Machine) Select(t Type) error {
	if t == TypeUnselected {
		m.state = TypeUnselected
		m.option = nil
		m.meetup = ""
		return nil
	}
	if !m.caps.Enabled(t) {
		return errors.Wrapf(ErrModeNotEnabled, "%s", t)
	}
	if m.state != t {
		m.option = nil
		m.meetup = ""
	}
	m.state = t
	return nil
}

// ChooseDeliveryOption records the delivery speed tier. Valid only in the
// Delivery state and only for a tier the vendor configured.
func (m *Machine) ChooseDeliveryOption(id string) error {
	if m.state != TypeDelivery {
		return errors.Wrapf(ErrModeNotEnabled, "delivery option outside delivery state")
	}
	opt, ok := m.caps.deliveryOption(id)
	if !ok {
		return errors.Wrapf(ErrUnknownDeliveryOption, "%s", id)
	}
	m.option = &opt
	return nil
}

// ChooseMeetupPoint records the meetup point. Valid only in the MeetupPoint
// state and only for a point in the vendor's list.
func (m *Machine) ChooseMeetupPoint(id string) error {
	if m.state != TypeMeetupPoint {
		return errors.Wrapf(ErrModeNotEnabled, "meetup point outside meetup state")
	}
	if !m.caps.hasMeetupPoint(id) {
		return errors.Wrapf(ErrUnknownMeetupPoint, "%s", id)
	}
	m.meetup = id
	return nil
}

// Selection returns the terminal selection for the active state, or an error
// describing what is still missing. freeShipping relaxes the delivery tier
// requirement: the tier is not charged in that case, so an order may be
// submitted without one.
func (m *Machine) Selection(freeShipping bool) (Selection, error) {
	switch m.state {
	case TypeUnselected:
		return Selection{}, ErrUnselected
	case TypeDelivery:
		if m.option == nil && !freeShipping {
			return Selection{}, ErrDeliveryOptionRequired
		}
		return Selection{Type: m.state, DeliveryOption: m.option}, nil
	case TypeMeetupPoint:
		if m.meetup == "" {
			return Selection{}, ErrMeetupPointRequired
		}
		return Selection{Type: m.state, MeetupPointID: m.meetup}, nil
	default:
		return Selection{Type: m.state}, nil
	}
}
