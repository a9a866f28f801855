package errors

import "fmt"

var (
	ErrAuthFailed        = fmt.Errorf("incorrect password")
	ErrAlreadyConnected  = fmt.Errorf("user already connected")
	ErrInvalidCredential = fmt.Errorf("credential contains forbidden characters")
	ErrMalformedCommand  = fmt.Errorf("malformed command")
	ErrFileTooLarge      = fmt.Errorf("declared size exceeds the transfer limit")
	ErrTransferTruncated = fmt.Errorf("stream ended before the declared length")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
)
