package qmem

import "errors"

var (
	// ErrPositionOccupied is returned when a qubit is placed into a position that holds one.
	ErrPositionOccupied = errors.New("memory position occupied")
	// ErrPositionEmpty is returned when an operation addresses an empty position.
	ErrPositionEmpty = errors.New("memory position empty")
	// ErrProcessorBusy is returned when an operation is issued while another is running.
	ErrProcessorBusy = errors.New("quantum processor busy")
	// ErrPositionOutOfRange is returned for positions outside [0, NumPositions).
	ErrPositionOutOfRange = errors.New("memory position out of range")
)
