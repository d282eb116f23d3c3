package system

import "errors"

var (
	ErrAdminNotSet       = errors.New("admin password not set")
	ErrAdminAlreadySet   = errors.New("admin password already set")
	ErrBadCredential     = errors.New("invalid admin credentials")
	ErrIgnoreRuleMissing = errors.New("ignore rule not found")
	ErrEmptyPattern      = errors.New("empty pattern")
)
