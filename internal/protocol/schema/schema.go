package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
)

// ObjType is the top-level command family on the wire.
type ObjType uint8

// CmdType is the sub command applied to an ObjType.
type CmdType uint8

// Object type IDs.
const (
	ObjMessage     ObjType = 1
	ObjTransformer ObjType = 2
	ObjSubscriber  ObjType = 3
	ObjGlobals     ObjType = 20
	ObjAction      ObjType = 50
)

// Command type IDs.
const (
	CmdUnknown CmdType = 0
	CmdSend    CmdType = 1
	CmdAdd     CmdType = 2
	CmdRemove  CmdType = 3
	CmdUpdate  CmdType = 20
	CmdSigterm CmdType = 50
)

// Requirement is the per-object contract checked before encoding.
type Requirement struct {
	Commands []CmdType
	Route    bool
}

var requirements = map[ObjType]Requirement{
	ObjMessage:     {Commands: []CmdType{CmdSend}, Route: true},
	ObjTransformer: {Commands: []CmdType{CmdAdd, CmdRemove}, Route: true},
	ObjSubscriber:  {Commands: []CmdType{CmdAdd, CmdRemove}, Route: true},
	ObjGlobals:     {Commands: []CmdType{CmdUpdate}},
	ObjAction:      {Commands: []CmdType{CmdSigterm}},
}

// ObjTypes lists every known object type in wire-tag order.
func ObjTypes() []ObjType {
	return []ObjType{ObjMessage, ObjTransformer, ObjSubscriber, ObjGlobals, ObjAction}
}

type ValidationError struct {
	Object ObjType
	Cmd    CmdType
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("schema: obj_type=%s cmd_type=%s: %s", e.Object, e.Cmd, e.Reason)
}

// ValidCommands returns the legal commands for obj. Unknown objects have none.
func ValidCommands(obj ObjType) []CmdType {
	req, ok := requirements[obj]
	if !ok {
		return nil
	}
	return slices.Clone(req.Commands)
}

// Allows reports whether cmd is legal for obj.
func Allows(obj ObjType, cmd CmdType) bool {
	req, ok := requirements[obj]
	if !ok {
		return false
	}
	return slices.Contains(req.Commands, cmd)
}

// RequiresRoute reports whether obj must carry a non-empty route in arg1.
func RequiresRoute(obj ObjType) bool {
	return requirements[obj].Route
}

// Validate enforces the command table for one obj/cmd pair.
func Validate(obj ObjType, cmd CmdType) error {
	if _, ok := requirements[obj]; !ok {
		log.Debug().Uint8("obj_type", uint8(obj)).Msg("schema.Validate unknown obj_type")
		return ValidationError{Object: obj, Cmd: cmd, Reason: "unknown obj_type"}
	}
	if !Allows(obj, cmd) {
		log.Debug().
			Stringer("obj_type", obj).
			Stringer("cmd_type", cmd).
			Msg("schema.Validate command not permissible")
		return ValidationError{Object: obj, Cmd: cmd, Reason: "command not permissible"}
	}
	return nil
}

func (o ObjType) String() string {
	switch o {
	case ObjMessage:
		return "MESSAGE"
	case ObjTransformer:
		return "TRANSFORMER"
	case ObjSubscriber:
		return "SUBSCRIBER"
	case ObjGlobals:
		return "GLOBALS"
	case ObjAction:
		return "ACTION"
	default:
		return fmt.Sprintf("OBJ(%d)", uint8(o))
	}
}

func (c CmdType) String() string {
	switch c {
	case CmdUnknown:
		return "UNKNOWN"
	case CmdSend:
		return "SEND"
	case CmdAdd:
		return "ADD"
	case CmdRemove:
		return "REMOVE"
	case CmdUpdate:
		return "UPDATE"
	case CmdSigterm:
		return "SIGTERM"
	default:
		return fmt.Sprintf("CMD(%d)", uint8(c))
	}
}

// ParseObjType maps a case-insensitive name to its ObjType.
func ParseObjType(raw string) (ObjType, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for _, o := range ObjTypes() {
		if o.String() == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown obj_type %q", raw)
}

// ParseCmdType maps a case-insensitive name to its CmdType.
func ParseCmdType(raw string) (CmdType, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for _, c := range []CmdType{CmdSend, CmdAdd, CmdRemove, CmdUpdate, CmdSigterm} {
		if c.String() == name {
			return c, nil
		}
	}
	return CmdUnknown, fmt.Errorf("schema: unknown cmd_type %q", raw)
}
