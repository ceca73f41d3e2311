package domain

import "errors"

// Error taxonomy for the chat pipeline. Input and auth errors terminate a
// request immediately; planning and execution errors are recovered through
// the fallback templates; answering errors surface to the caller after one
// fallback-model retry.
var (
	ErrInvalidInput = errors.New("chat: invalid input")
	ErrUnauthorized = errors.New("chat: unauthorized")
	ErrPlanning     = errors.New("chat: planning failed")
	ErrExecution    = errors.New("chat: execution failed")
	ErrAnswering    = errors.New("chat: answer generation failed")
)
