package repository

import "errors"

// ErrDuplicate нарушение уникального ограничения
var ErrDuplicate = errors.New("duplicate row")
