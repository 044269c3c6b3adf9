package turnos

import "errors"

var (
	// ErrSlotTaken is returned when a reservation loses the race for a
	// slot that another request booked first.
	ErrSlotTaken = errors.New("turnos: slot already booked")

	// ErrTurnoNotFound is returned when no slot exists for the id.
	ErrTurnoNotFound = errors.New("turnos: turno not found")

	// ErrInvalidTransition is returned when an attendance or rejection
	// operation is attempted from a state that does not permit it.
	ErrInvalidTransition = errors.New("turnos: invalid state transition")
)
