package gateway

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorKind is the closed set of failures the gateway reports.
type ErrorKind int

const (
	// RemoteCall covers node, network, timeout and revert failures.
	RemoteCall ErrorKind = iota
	NoWallet
	UserRejected
	UnknownNetwork
	TransactionFailed
	Validation
	SessionInvalid
)

// Wallet error codes from EIP-1193 / EIP-3326.
const (
	CodeUserRejected          = 4001
	CodeUnauthorizedOperation = 4100
	CodeUnrecognizedChain     = 4902
)

func (k ErrorKind) String() string {
	switch k {
	case NoWallet:
		return "NoWallet"
	case UserRejected:
		return "UserRejected"
	case UnknownNetwork:
		return "UnknownNetwork"
	case TransactionFailed:
		return "TransactionFailed"
	case Validation:
		return "Validation"
	case SessionInvalid:
		return "SessionInvalid"
	default:
		return "RemoteCall"
	}
}

func (k ErrorKind) description() string {
	switch k {
	case NoWallet:
		return "no wallet available"
	case UserRejected:
		return "request rejected by user"
	case UnknownNetwork:
		return "network is not registered with the wallet"
	case TransactionFailed:
		return "transaction failed"
	case Validation:
		return "invalid input"
	case SessionInvalid:
		return "session is no longer valid"
	default:
		return "remote call failed"
	}
}

// Error is the single error type returned by gateway operations.
type Error struct {
	Kind    ErrorKind
	Code    int // wallet error code, 0 when none
	Message string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrRemoteCall        = &Error{Kind: RemoteCall}
	ErrNoWallet          = &Error{Kind: NoWallet}
	ErrUserRejected      = &Error{Kind: UserRejected}
	ErrUnknownNetwork    = &Error{Kind: UnknownNetwork}
	ErrTransactionFailed = &Error{Kind: TransactionFailed}
	ErrValidation        = &Error{Kind: Validation}
	ErrSessionInvalid    = &Error{Kind: SessionInvalid}
)

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.description()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so callers can match against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err; errors the gateway never classified report RemoteCall.
func KindOf(err error) ErrorKind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return RemoteCall
}

// Classify maps a raw error from the wallet or the chain node onto the
// gateway's kinds. Wallet codes 4001 and 4902 are recognised; everything else
// becomes RemoteCall with the underlying message kept verbatim.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected:
			return &Error{Kind: UserRejected, Code: CodeUserRejected, Message: err.Error(), Err: err}
		case CodeUnrecognizedChain:
			return &Error{Kind: UnknownNetwork, Code: CodeUnrecognizedChain, Message: err.Error(), Err: err}
		default:
			return &Error{Kind: RemoteCall, Code: rpcErr.ErrorCode(), Message: err.Error(), Err: err}
		}
	}

	return &Error{Kind: RemoteCall, Message: err.Error(), Err: err}
}

// WalletError is an error raised by a wallet with an EIP-1193 code. It
// satisfies rpc.Error so Classify treats it like a provider response.
type WalletError struct {
	Code    int
	Message string
}

// NewWalletError creates a wallet error with the given code
func NewWalletError(code int, message string) *WalletError {
	return &WalletError{Code: code, Message: message}
}

func (e *WalletError) Error() string {
	return e.Message
}

// ErrorCode implements rpc.Error.
func (e *WalletError) ErrorCode() int {
	return e.Code
}
