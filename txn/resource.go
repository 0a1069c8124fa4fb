package txn

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Flags passed to Resource.Start, Resource.End and Resource.Recover.
const (
	FlagNone      = 0x00000000
	FlagJoin      = 0x00200000
	FlagResume    = 0x08000000
	FlagSuccess   = 0x04000000
	FlagFail      = 0x20000000
	FlagSuspend   = 0x02000000
	FlagStartScan = 0x01000000
	FlagEndScan   = 0x00800000
	FlagOnePhase  = 0x40000000
)

// Vote is a participant's answer to Prepare.
type Vote int

const (
	VoteOK Vote = iota
	// VoteReadOnly means the branch did no updates and has already been
	// released. The coordinator must not commit or roll it back.
	VoteReadOnly
)

// Xid identifies a transaction branch.
type Xid struct {
	FormatID        int32
	GlobalID        []byte
	BranchQualifier []byte
}

func (x Xid) Equal(other Xid) bool {
	return x.FormatID == other.FormatID &&
		bytes.Equal(x.GlobalID, other.GlobalID) &&
		bytes.Equal(x.BranchQualifier, other.BranchQualifier)
}

func (x Xid) IsZero() bool {
	return x.FormatID == 0 && len(x.GlobalID) == 0 && len(x.BranchQualifier) == 0
}

func (x Xid) String() string {
	return strconv.Itoa(int(x.FormatID)) + ":" + hex.EncodeToString(x.GlobalID) + ":" + hex.EncodeToString(x.BranchQualifier)
}

// Resource is a two-phase commit participant, modelled on the X/Open XA
// interface.
type Resource interface {
	Start(ctx context.Context, xid Xid, flags int) error
	End(ctx context.Context, xid Xid, flags int) error
	Prepare(ctx context.Context, xid Xid) (Vote, error)
	Commit(ctx context.Context, xid Xid, onePhase bool) error
	Rollback(ctx context.Context, xid Xid) error
	Forget(ctx context.Context, xid Xid) error
	Recover(ctx context.Context, flags int) ([]Xid, error)
	IsSameRM(other Resource) bool
}

// XACode is an XA error code.
type XACode int

const (
	HeurRollback XACode = 6
	ErrRMErr     XACode = -3
	ErrNota      XACode = -4
	ErrInval     XACode = -5
	ErrProto     XACode = -6
	ErrRMFail    XACode = -7
)

var xaCodeNames = map[XACode]string{
	HeurRollback: "XA_HEURRB",
	ErrRMErr:     "XAER_RMERR",
	ErrNota:      "XAER_NOTA",
	ErrInval:     "XAER_INVAL",
	ErrProto:     "XAER_PROTO",
	ErrRMFail:    "XAER_RMFAIL",
}

func (c XACode) String() string {
	if s, ok := xaCodeNames[c]; ok {
		return s
	}
	return "XA(" + strconv.Itoa(int(c)) + ")"
}

// XAError is returned by Resource implementations.
type XAError struct {
	Code XACode
	Msg  string
	Err  error
}

func (e *XAError) Error() string {
	msg := e.Code.String() + ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *XAError) Unwrap() error {
	return e.Err
}

// NewXAError builds an XAError with a formatted message.
func NewXAError(code XACode, err error, format string, args ...any) *XAError {
	return &XAError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
