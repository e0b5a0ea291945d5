package auction

import (
	"errors"
	"fmt"
)

// Kind 錯誤分類，API 層依此對應 HTTP 狀態碼
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidParameters
	KindBidTooLow
	KindNotExpired
	KindAlreadyShipped
	KindNotShipped
	KindNotPhysicalItem
	KindUnauthorized
	KindNoBids
	KindInsufficientBalance
	KindAlreadySettled
	KindNotFound
	KindNotActive
	KindInvalidState
	KindConflict
)

var kindNames = map[Kind]string{
	KindUnknown:             "Unknown",
	KindInvalidParameters:   "InvalidParameters",
	KindBidTooLow:           "BidTooLow",
	KindNotExpired:          "NotExpired",
	KindAlreadyShipped:      "AlreadyShipped",
	KindNotShipped:          "NotShipped",
	KindNotPhysicalItem:     "NotPhysicalItem",
	KindUnauthorized:        "Unauthorized",
	KindNoBids:              "NoBids",
	KindInsufficientBalance: "InsufficientBalance",
	KindAlreadySettled:      "AlreadySettled",
	KindNotFound:            "NotFound",
	KindNotActive:           "NotActive",
	KindInvalidState:        "InvalidState",
	KindConflict:            "Conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error 是引擎回傳的領域錯誤
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Op != "" {
		msg = fmt.Sprintf("[%s] %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ", err=" + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 讓 errors.Is(err, ErrBidTooLow) 以 Kind 比對
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Reason == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidParameters   = &Error{Kind: KindInvalidParameters}
	ErrBidTooLow           = &Error{Kind: KindBidTooLow}
	ErrNotExpired          = &Error{Kind: KindNotExpired}
	ErrAlreadyShipped      = &Error{Kind: KindAlreadyShipped}
	ErrNotShipped          = &Error{Kind: KindNotShipped}
	ErrNotPhysicalItem     = &Error{Kind: KindNotPhysicalItem}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrNoBids              = &Error{Kind: KindNoBids}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrAlreadySettled      = &Error{Kind: KindAlreadySettled}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrNotActive           = &Error{Kind: KindNotActive}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrConflict            = &Error{Kind: KindConflict}
)

// NewError 建立帶操作名稱的領域錯誤
func NewError(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// WrapError 包裝底層錯誤，保留 Kind
func WrapError(op string, kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取出錯誤鏈中第一個領域錯誤的 Kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
