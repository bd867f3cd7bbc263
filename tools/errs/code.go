package errs

// Sync/document taxonomy. NotFound is recovered by creation and never shown
// to the user; everything else maps to a user-visible surface (see notify).
const (
	CodeArgs          = 1001
	CodeTokenInvalid  = 1002
	CodeNotFound      = 1101
	CodeNotReady      = 1102
	CodeTransientSync = 1103
	CodeWriteFailure  = 1104
	CodeFatalSync     = 1105
)

var (
	ErrArgs          = NewCodeError(CodeArgs, "invalid argument")
	ErrTokenInvalid  = NewCodeError(CodeTokenInvalid, "token invalid or expired")
	ErrNotFound      = NewCodeError(CodeNotFound, "document not found")
	ErrNotReady      = NewCodeError(CodeNotReady, "sync not ready")
	ErrTransientSync = NewCodeError(CodeTransientSync, "subscription dropped")
	ErrWriteFailure  = NewCodeError(CodeWriteFailure, "write failed")
	ErrFatalSync     = NewCodeError(CodeFatalSync, "sync retries exhausted")
)
