package client

import (
    "errors"
    "fmt"
)

var (
    // ErrConnectionFailure matches every *ConnectionError.
    ErrConnectionFailure = errors.New("connection failure")
    // ErrOperationCancelled matches every *CancelledError.
    ErrOperationCancelled = errors.New("operation cancelled")
    // ErrNotConnected is returned when writing without a live link.
    ErrNotConnected = errors.New("not connected to the package service")
    // ErrClosed is returned by calls made after Close.
    ErrClosed = errors.New("client closed")
)

// ConnectionError reports that the service could not be reached.
type ConnectionError struct {
    Address string
    Err     error
}

func (e *ConnectionError) Error() string {
    return fmt.Sprintf("could not connect to package service at %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnectionFailure, e.Err} }

// CancelledError reports a call that ended without completing: the service
// cancelled it, the service restarted, or the caller's context ended.
type CancelledError struct {
    Reason string
    // Restarting is set when the service announced a restart; the next call
    // reconnects.
    Restarting bool
    // Cause is the caller's context cause, if that is what ended the call.
    Cause error
}

func (e *CancelledError) Error() string {
    switch {
    case e.Restarting:
        return "operation cancelled: package service is restarting"
    case e.Cause != nil:
        return "operation cancelled: " + e.Cause.Error()
    case e.Reason != "":
        return "operation cancelled: " + e.Reason
    }
    return "operation cancelled"
}

func (e *CancelledError) Unwrap() []error {
    if e.Cause == nil { return []error{ErrOperationCancelled} }
    return []error{ErrOperationCancelled, e.Cause}
}

// RequestError reports a failure notice the service sent for a call that
// otherwise completed, such as a failed install or an unknown package.
type RequestError struct {
    Command string
    Package string
    Reason  string
}

func (e *RequestError) Error() string {
    msg := e.Command
    if e.Package != "" { msg += " " + e.Package }
    if e.Reason != "" { msg += ": " + e.Reason }
    return msg
}
