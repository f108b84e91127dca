// Package repository implements the storage ports of the domain packages on
// MySQL.  Missing rows are reported with the owning package's sentinel
// (capacity.ErrSlotNotFound, reconcile.ErrOrderNotFound) or with the errors
// below, so handlers can map them to HTTP status codes.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be applied because of the
// row's current state, such as cancelling a confirmed reservation.
// Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrReservationNotFound is returned for an unknown reservation id.
var ErrReservationNotFound = errors.New("reservation not found")
