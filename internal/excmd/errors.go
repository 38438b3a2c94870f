package excmd

import "errors"

var (
	ErrUnknownCommand = errors.New("not an editor command")
	ErrBadAddress     = errors.New("invalid address")
	ErrAddressOrder   = errors.New("the second address is smaller than the first")
	ErrNoAddress      = errors.New("command doesn't take an address")
	ErrEmptyFile      = errors.New("the file is empty")
	ErrNoMatch        = errors.New("no match found")
	ErrNoPattern      = errors.New("no previous regular expression")
	ErrModified       = errors.New("file modified since last write; write or use ! to override")
	ErrInterrupted    = errors.New("interrupted")
	ErrUsage          = errors.New("usage")
)
