package exchange

import "errors"

var ErrTooManyZones = errors.New("search declares more than the allowed number of zones")
