package program

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/brojonat/flowtip/service/failure"
	flowsolana "github.com/brojonat/flowtip/service/solana"
)

// Code is a custom program error code as reported in InstructionError.
type Code uint32

const (
	// Runtime constraint codes shared with the account framework.
	CodeConstraintSeeds       Code = 2006
	CodeConstraintAddress     Code = 2012
	CodeAccountNotInitialized Code = 3012
	CodeAccountNotSigner      Code = 3010

	CodeHandleTooLong             Code = 6000
	CodeHandleEmpty               Code = 6001
	CodeCreatorAlreadyInitialized Code = 6002
	CodeInvalidAmount             Code = 6003
	CodeMathOverflow              Code = 6004
	CodeInvalidHandleCharacters   Code = 6005
	CodeAddressMismatch           Code = 6006

	// SPL token program codes the tip flow can surface.
	CodeTokenInsufficientFunds Code = 1
	CodeTokenMintMismatch      Code = 3
	CodeTokenOwnerMismatch     Code = 4
)

type codeInfo struct {
	name string
	msg  string
	kind failure.Kind
}

var codes = map[Code]codeInfo{
	CodeConstraintSeeds:           {"ConstraintSeeds", "A seeds constraint was violated", failure.AddressMismatch},
	CodeConstraintAddress:         {"ConstraintAddress", "An address constraint was violated", failure.AddressMismatch},
	CodeAccountNotInitialized:     {"AccountNotInitialized", "The program expected this account to be already initialized", failure.NotFound},
	CodeAccountNotSigner:          {"AccountNotSigner", "The given account did not sign", failure.InvalidInput},
	CodeHandleTooLong:             {"HandleTooLong", "Handle is too long (max 32 characters)", failure.InvalidInput},
	CodeHandleEmpty:               {"HandleEmpty", "Handle cannot be empty", failure.InvalidInput},
	CodeCreatorAlreadyInitialized: {"CreatorAlreadyInitialized", "Creator profile already exists", failure.AlreadyExists},
	CodeInvalidAmount:             {"InvalidAmount", "Invalid tip amount (must be greater than 0)", failure.InvalidAmount},
	CodeMathOverflow:              {"MathOverflow", "Math overflow occurred", failure.Overflow},
	CodeInvalidHandleCharacters:   {"InvalidHandleCharacters", "Handle may only contain a-z, 0-9 and _", failure.InvalidInput},
	CodeAddressMismatch:           {"AddressMismatch", "Account does not match its derived address", failure.AddressMismatch},
	CodeTokenInsufficientFunds:    {"InsufficientFunds", "Insufficient token funds", failure.InsufficientFunds},
	CodeTokenMintMismatch:         {"MintMismatch", "Account not associated with this mint", failure.InvalidInput},
	CodeTokenOwnerMismatch:        {"OwnerMismatch", "Owner does not match", failure.InvalidInput},
}

// Error is returned by the processor and by the ledger that executes it.
type Error struct {
	Code Code
}

func (e *Error) Error() string {
	if info, ok := codes[e.Code]; ok {
		return fmt.Sprintf("%s (%d): %s", info.name, e.Code, info.msg)
	}
	return fmt.Sprintf("custom program error: %d", e.Code)
}

// Name returns the symbolic name of the code, or "Custom(<n>)".
func (c Code) Name() string {
	if info, ok := codes[c]; ok {
		return info.name
	}
	return fmt.Sprintf("Custom(%d)", uint32(c))
}

// Kind classifies the code.
func (c Code) Kind() failure.Kind {
	if info, ok := codes[c]; ok {
		return info.kind
	}
	return failure.Internal
}

// ErrorFromCode converts an on-chain error code into a classified error.
func ErrorFromCode(code Code) *failure.Error {
	return failure.Wrap(&Error{Code: code}, code.Kind(), "program error")
}

func fail(code Code) error {
	return &Error{Code: code}
}

// DescribeTransactionError turns the err field of a signature status into a
// classified error. Supported shapes are the JSON decoded forms of
// {"InstructionError":[idx,{"Custom":n}]}, {"InstructionError":[idx,"Name"]}
// and bare strings such as "BlockhashNotFound".
func DescribeTransactionError(status any) *failure.Error {
	switch v := status.(type) {
	case nil:
		return nil
	case string:
		return describeNamed(v)
	case map[string]any:
		raw, ok := v["InstructionError"]
		if !ok {
			for name := range v {
				return describeNamed(name)
			}
			return failure.New(failure.Internal, "transaction failed")
		}
		parts, ok := raw.([]any)
		if !ok || len(parts) != 2 {
			return failure.New(failure.Internal, "transaction failed: %v", raw)
		}
		idx := toUint64(parts[0])
		switch detail := parts[1].(type) {
		case map[string]any:
			if custom, ok := detail["Custom"]; ok {
				code := Code(toUint64(custom))
				return failure.New(code.Kind(), "instruction %d failed: %s (%d)", idx, code.Name(), code)
			}
			return failure.New(failure.Internal, "instruction %d failed: %v", idx, detail)
		case string:
			fe := describeNamed(detail)
			return failure.New(fe.Kind, "instruction %d failed: %s", idx, detail)
		default:
			return failure.New(failure.Internal, "instruction %d failed: %v", idx, detail)
		}
	default:
		return failure.New(failure.Internal, "transaction failed: %v", v)
	}
}

func describeNamed(name string) *failure.Error {
	switch name {
	case "BlockhashNotFound":
		return failure.New(failure.StaleCheckpoint, "%s", name)
	case "InsufficientFundsForFee", "InsufficientFundsForRent", "InsufficientFunds":
		return failure.New(failure.InsufficientFunds, "%s", name)
	case "AccountNotFound":
		return failure.New(failure.NotFound, "%s", name)
	case "MissingRequiredSignature":
		return failure.New(failure.InvalidInput, "%s", name)
	}
	return failure.New(failure.Internal, "%s", name)
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case float64:
		return uint64(n)
	case int:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case int64:
		return uint64(n)
	}
	return 0
}

var customErrPattern = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)

// ClassifySendError classifies an error returned by sendTransaction. Failed
// simulations carry the program error code in the message text.
func ClassifySendError(err error) *failure.Error {
	if err == nil {
		return nil
	}
	var fe *failure.Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(err, failure.Timeout, "submission timed out")
	}
	if flowsolana.IsBlockhashNotFound(err) {
		return failure.Wrap(err, failure.StaleCheckpoint, "blockhash expired before submission")
	}
	msg := err.Error()
	if m := customErrPattern.FindStringSubmatch(msg); m != nil {
		if n, perr := strconv.ParseUint(m[1], 16, 32); perr == nil {
			code := Code(n)
			return failure.Wrap(err, code.Kind(), fmt.Sprintf("transaction rejected: %s (%d)", code.Name(), code))
		}
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no record of a prior credit"),
		strings.Contains(lower, "insufficient funds for fee"),
		strings.Contains(lower, "insufficient lamports"):
		return failure.Wrap(err, failure.RelayerUnderfunded, "fee payer cannot cover the transaction fee")
	case strings.Contains(lower, "signature verification failure"),
		strings.Contains(lower, "missingrequiredsignature"),
		strings.Contains(lower, "invalid transaction"):
		return failure.Wrap(err, failure.InvalidInput, "transaction rejected")
	case strings.Contains(lower, "already been processed"):
		return failure.Wrap(err, failure.AlreadyExists, "transaction already submitted")
	}
	return failure.Wrap(err, failure.ServiceUnavailable, "failed to submit transaction")
}
