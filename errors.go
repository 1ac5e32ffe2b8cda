package oriondb

import (
	"errors"
	"fmt"
)

// ErrSnapshotWrite is returned by Create when the initial snapshot
// cannot be written.
var ErrSnapshotWrite = errors.New("oriondb: snapshot write failed")

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension uint32
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("oriondb: invalid vector dimension: %d", e.Dimension)
}
