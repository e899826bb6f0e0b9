package sift

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a flat record has fewer elements than the record needs.
	ErrInsufficientData = errors.New("not enough elements to deserialize")
	// ErrRecordType is returned when a collection holds the wrong record kind.
	ErrRecordType = errors.New("wrong record type")
	// ErrPayload is returned when a descriptor payload cannot be decoded.
	ErrPayload = errors.New("invalid descriptor payload")
	// ErrFieldType is returned when a flat element has the wrong type for its field.
	ErrFieldType = errors.New("invalid field value")
	// ErrDescriptorLength is returned for a descriptor length outside [0, DescriptorSize].
	ErrDescriptorLength = errors.New("invalid descriptor length")
	// ErrBusy is returned when a collection is read during an in-place update.
	ErrBusy = errors.New("collection is being updated")
	// ErrReleased is returned when a collection's storage has been released.
	ErrReleased = errors.New("collection storage released")
	// ErrUnknownBackend is returned by NewBackend for unregistered names.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrMaskSize is returned when a detection mask does not cover the image.
	ErrMaskSize = errors.New("mask size does not match image")
	// ErrIndex is returned for an element index outside a collection.
	ErrIndex = errors.New("index out of range")
)

// InsufficientDataError reports a short flat record.
type InsufficientDataError struct {
	Record string
	Have   int
	Need   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %s (%d < %d)", e.Record, ErrInsufficientData, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// RecordTypeError reports a collection of the wrong record kind.
type RecordTypeError struct {
	Want RecordKind
	Got  string
}

func (e *RecordTypeError) Error() string {
	return fmt.Sprintf("input must be a %s sequence, not %s", e.Want, e.Got)
}

func (e *RecordTypeError) Is(target error) bool { return target == ErrRecordType }
