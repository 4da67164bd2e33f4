package softap

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tomiamao/softap/internal/apconfig"
	"github.com/tomiamao/softap/internal/fwpath"
)

// ResponseCode is the result category reported to callers.
type ResponseCode int

// Response codes. The 400 series means the command was accepted but the
// action did not take place; the 500 series means the command was
// rejected.
const (
	SoftapStatusResult    ResponseCode = 214
	OperationFailed       ResponseCode = 400
	ServiceStartFailed    ResponseCode = 402
	CommandSyntaxError    ResponseCode = 500
	CommandParameterError ResponseCode = 501
)

func (c ResponseCode) String() string {
	switch c {
	case SoftapStatusResult:
		return "status"
	case OperationFailed:
		return "operation failed"
	case ServiceStartFailed:
		return "service start failed"
	case CommandSyntaxError:
		return "syntax error"
	case CommandParameterError:
		return "parameter error"
	}
	return fmt.Sprintf("code %d", int(c))
}

// An OperationError is a failed operation along with its response code.
type OperationError struct {
	Code ResponseCode
	Err  error
}

func (e *OperationError) Error() string { return e.Err.Error() }

func (e *OperationError) Unwrap() error { return e.Err }

// fail wraps err with code unless err already carries one.
func fail(code ResponseCode, err error) error {
	var oe *OperationError
	if errors.As(err, &oe) {
		return err
	}
	return &OperationError{Code: code, Err: err}
}

// Code returns the response code for the result of an operation.
func Code(err error) ResponseCode {
	if err == nil {
		return SoftapStatusResult
	}

	var oe *OperationError
	switch {
	case errors.As(err, &oe):
		return oe.Code
	case errors.Is(err, apconfig.ErrSyntax):
		return CommandSyntaxError
	case errors.Is(err, apconfig.ErrParameter), errors.Is(err, fwpath.ErrUnknownMode):
		return CommandParameterError
	}
	return OperationFailed
}

// classify wraps err with the code implied by its cause, falling back to
// def.
func classify(def ResponseCode, err error) error {
	switch Code(err) {
	case CommandSyntaxError:
		return fail(CommandSyntaxError, err)
	case CommandParameterError:
		return fail(CommandParameterError, err)
	}
	return fail(def, err)
}
