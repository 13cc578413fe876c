package ltc

import "errors"

var (
	ErrClosed      = errors.New("ltc: pipeline closed")
	ErrNotPrepared = errors.New("ltc: encoder not prepared")
	// ErrEngine marks a codec engine or buffer setup failure. It is fatal to
	// the pipeline instance that hit it.
	ErrEngine = errors.New("ltc: engine setup failed")
)
