package kernel

import "errors"

var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrTableFull     = errors.New("handle table is full")
	ErrNullObject    = errors.New("null object")
	ErrUnmapped      = errors.New("address range is not mapped")
	ErrPermission    = errors.New("address range permission denied")
	ErrOverlap       = errors.New("address range overlaps existing mapping")
)
