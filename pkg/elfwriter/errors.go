package elfwriter

import "errors"

var errHalfway = errors.New("can't write halfway through a file")
