package hood

import (
	"fmt"
)

// error taxonomy for the client:
// NetworkError - the transport could not reach the server or timed out
// ServerError - the server answered with a non-2xx status
// AuthError - sign in, sign up, or sign out failed
// LocationError - device location permission denied or unavailable
// all retain the underlying cause for diagnostics

type NetworkError struct {
	Cause error
}

func (self *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", self.Cause)
}

func (self *NetworkError) Unwrap() error {
	return self.Cause
}

type ServerError struct {
	Status int
	Body   string
}

func (self *ServerError) Error() string {
	if self.Body == "" {
		return fmt.Sprintf("server error: status %d", self.Status)
	}
	return fmt.Sprintf("server error: status %d: %s", self.Status, self.Body)
}

type AuthError struct {
	Reason string
	Cause  error
}

func (self *AuthError) Error() string {
	return self.Reason
}

func (self *AuthError) Unwrap() error {
	return self.Cause
}

type LocationError struct {
	Reason string
	Cause  error
}

func (self *LocationError) Error() string {
	return self.Reason
}

func (self *LocationError) Unwrap() error {
	return self.Cause
}
