// Package expect classifies product output and turns judgments into
// assertion failures.
//
// The product exits with the same status for every failure, so all
// differentiation is literal substring matching against its messages.
package expect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// Product messages matched verbatim.
const (
	MsgConnected       = "You are connected to"
	MsgDisconnected    = "You are disconnected from NordVPN."
	MsgGroupNotFound   = "The specified group does not exist."
	MsgServerNotFound  = "The specified server does not exist."
	MsgInvalidCommand  = "Command '%s' doesn't exist."
	MsgNotConnected    = "You are not connected to NordVPN."
	msgConnectionError = "Whoops!"
)

// Failure is an observed state that did not match the expectation.
type Failure struct {
	// Check names what was verified.
	Check string

	// Evidence is the output or snapshot the judgment was made on.
	Evidence string
}

func (f *Failure) Error() string {
	if f.Evidence == "" {
		return "assertion failed: " + f.Check
	}
	return fmt.Sprintf("assertion failed: %s\n%s", f.Check, strings.TrimRight(f.Evidence, "\n"))
}

// That returns nil when ok holds and a *Failure otherwise.
func That(ok bool, check, evidence string) error {
	if ok {
		return nil
	}
	return &Failure{Check: check, Evidence: evidence}
}

// IsFailure reports whether err contains a *Failure.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// ---- Output classifiers ----

// ConnectSucceeded reports whether out is a successful connect message
// mentioning every given server name or hostname.
func ConnectSucceeded(out string, names ...string) bool {
	if !strings.Contains(out, MsgConnected) {
		return false
	}
	for _, n := range names {
		if !strings.Contains(out, n) {
			return false
		}
	}
	return true
}

// DisconnectSucceeded reports whether out is a successful disconnect.
func DisconnectSucceeded(out string) bool {
	return strings.Contains(out, MsgDisconnected)
}

// ConnectFailed reports whether err is a product failure from a connect
// that did not connect. A killed process is not a product answer.
func ConnectFailed(err error) bool {
	ce, ok := vpncli.AsCommandError(err)
	if !ok || ce.Killed() {
		return false
	}
	return !strings.Contains(ce.Result.Output(), MsgConnected)
}

// ServerNotFound reports whether err carries the absent-server message.
func ServerNotFound(err error) bool {
	return failedWith(err, MsgServerNotFound)
}

// GroupNotFound reports whether err carries the invalid-group message.
func GroupNotFound(err error) bool {
	return failedWith(err, MsgGroupNotFound)
}

// InvalidCommand reports whether err rejects cmd as an unknown subcommand.
func InvalidCommand(cmd string, err error) bool {
	return failedWith(err, fmt.Sprintf(MsgInvalidCommand, cmd))
}

func failedWith(err error, msg string) bool {
	ce, ok := vpncli.AsCommandError(err)
	if !ok || ce.Killed() {
		return false
	}
	return strings.Contains(ce.Result.Output(), msg)
}

// ---- Classification ----

// FailureKind is the cause attributed to an error.
type FailureKind int

// Failure kinds.
const (
	KindNone FailureKind = iota
	KindServerNotFound
	KindGroupNotFound
	KindInvalidCommand
	KindConnectionError
	KindCommand
	KindKilled
	KindAssertion
	KindOther
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindServerNotFound:
		return "server_not_found"
	case KindGroupNotFound:
		return "group_not_found"
	case KindInvalidCommand:
		return "invalid_command"
	case KindConnectionError:
		return "connection_error"
	case KindCommand:
		return "command"
	case KindKilled:
		return "killed"
	case KindAssertion:
		return "assertion"
	default:
		return "other"
	}
}

// Classify attributes err to a failure kind.
func Classify(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	if IsFailure(err) {
		return KindAssertion
	}

	ce, ok := vpncli.AsCommandError(err)
	if !ok {
		return KindOther
	}
	if ce.Killed() {
		return KindKilled
	}

	out := ce.Result.Output()
	switch {
	case strings.Contains(out, MsgServerNotFound):
		return KindServerNotFound
	case strings.Contains(out, MsgGroupNotFound):
		return KindGroupNotFound
	case strings.Contains(out, "Command '") && strings.Contains(out, "' doesn't exist."):
		return KindInvalidCommand
	case strings.Contains(out, msgConnectionError):
		return KindConnectionError
	default:
		return KindCommand
	}
}
