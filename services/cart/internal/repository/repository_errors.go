package repository

import "errors"

var ErrCartNotFound = errors.New("cart not found")
var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")
