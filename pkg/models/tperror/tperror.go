package tperror

import (
	"errors"
	"fmt"
)

const (
	TENANT_UNEXPECTED       = "TNTU"
	TENANT_CONNECTION_ERROR = "TNTO"
	TENANT_RESOLVE_ERROR    = "TNTR"
	TENANT_POOL_EXHAUSTED   = "TNTX"
	TENANT_MANAGER_CLOSED   = "TNTC"
	TENANT_INVALID_TENANT   = "TNTI"
	TENANT_DOUBLE_RELEASE   = "TNTD"
)

var existingErrorCodeMap = map[string]string{
	TENANT_CONNECTION_ERROR: "Connection error",
	TENANT_RESOLVE_ERROR:    "Tenant database resolution error",
	TENANT_POOL_EXHAUSTED:   "Connection pool exhausted",
	TENANT_MANAGER_CLOSED:   "Connection manager closed",
	TENANT_INVALID_TENANT:   "Invalid tenant",
	TENANT_DOUBLE_RELEASE:   "Connection released twice",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &TenantError{}

type TenantError struct {
	Err error

	ErrorCode string
}

// New creates a TenantError with the given code and message.
func New(errorCode string, errorMsg string) *TenantError {
	return &TenantError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf is New with formatting. A %w verb keeps the wrapped cause reachable.
func Newf(errorCode string, format string, a ...any) *TenantError {
	return &TenantError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

// Wrap attaches a code and a message to cause. It returns nil for a nil cause.
func Wrap(cause error, errorCode string, errorMsg string) error {
	if cause == nil {
		return nil
	}
	return &TenantError{
		Err:       fmt.Errorf("%s: %w", errorMsg, cause),
		ErrorCode: errorCode,
	}
}

func (er *TenantError) Error() string {
	return er.Err.Error()
}

func (er *TenantError) Unwrap() error {
	return er.Err
}

// Describe renders the error together with its code, the way it is
// reported to operators.
func (er *TenantError) Describe() string {
	return fmt.Sprintf("Code: %s. Name: %s. Description: %s.",
		er.ErrorCode, GetMessageByCode(er.ErrorCode), er.Err)
}

// IsCode reports whether any TenantError in err's chain carries errorCode.
func IsCode(err error, errorCode string) bool {
	var te *TenantError
	for err != nil {
		if !errors.As(err, &te) {
			return false
		}
		if te.ErrorCode == errorCode {
			return true
		}
		err = te.Err
	}
	return false
}
