package camera

import "errors"

// ErrDeviceNotFound is returned when a camera name does not exist.
var ErrDeviceNotFound = errors.New("camera: not found")
