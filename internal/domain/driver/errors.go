package driver

import "errors"

var (
	ErrDriverNotFound     = errors.New("driver not found")
	ErrAlreadyReserved    = errors.New("driver already reserved")
	ErrNotReserved        = errors.New("driver is not reserved")
	ErrInvalidVehicleType = errors.New("invalid vehicle type")
)
