// Package auth checks the security token carried by GLOBALS updates.
//
// The codec never inspects tokens; receivers opt in by calling CheckCommand.
package auth

import (
	"crypto/subtle"
	"errors"

	"github.com/danmuck/mycelia/internal/command"
	"github.com/danmuck/mycelia/internal/protocol"
	"github.com/danmuck/mycelia/internal/protocol/schema"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// AllowAll accepts any token.
type AllowAll struct{}

func (AllowAll) Validate(string) error { return nil }

// ForToken returns StaticToken for a non-empty token and AllowAll otherwise.
func ForToken(token string) Validator {
	if token == "" {
		return AllowAll{}
	}
	return StaticToken{Token: token}
}

// CheckCommand validates the token of a GLOBALS command. Other objects carry
// no token and always pass.
func CheckCommand(v Validator, cmd protocol.Command) error {
	if cmd.Object != schema.ObjGlobals {
		return nil
	}
	values, err := command.DecodeGlobals(cmd.Payload)
	if err != nil {
		return err
	}
	return v.Validate(values.SecurityToken)
}
