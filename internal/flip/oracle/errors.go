package oracle

import "fmt"

// Failure reasons carried by ServiceError.
const (
	ReasonRequest = "request"
	ReasonNetwork = "network"
	ReasonTimeout = "timeout"
	ReasonStatus  = "status"
	ReasonPayload = "payload"
)

// ServiceError reports that the pricing service could not produce an outcome.
type ServiceError struct {
	Reason string
	Status int
	Err    error
}

func newServiceError(reason string, status int, err error) *ServiceError {
	return &ServiceError{Reason: reason, Status: status, Err: err}
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pricing service %s error (status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("pricing service %s error: %v", e.Reason, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
