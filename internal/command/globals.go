package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/danmuck/mycelia/internal/protocol"
)

// GlobalValues is a sparse broker configuration update.
// Nil pointers and empty strings are left untouched on the broker.
// Out-of-range numbers are treated as unset.
type GlobalValues struct {
	Address          string
	Port             *int // 1..65535
	Verbosity        *int // 0..3
	PrintTree        *bool
	TransformTimeout string // duration text, e.g. "5s"
	Consolidate      *bool
	SecurityToken    string // required
}

// wire order is the struct order.
type globalsPayload struct {
	Address          string `json:"address,omitempty"`
	Port             *int   `json:"port,omitempty"`
	Verbosity        *int   `json:"verbosity,omitempty"`
	PrintTree        *bool  `json:"print_tree,omitempty"`
	TransformTimeout string `json:"transform_timeout,omitempty"`
	Consolidate      *bool  `json:"consolidate,omitempty"`
	SecurityToken    string `json:"security-token"`
}

func Int(v int) *int {
	return &v
}

func Bool(v bool) *bool {
	return &v
}

// Payload renders the update as JSON, dropping unset and out-of-range fields.
func (g GlobalValues) Payload() ([]byte, error) {
	out := globalsPayload{
		Address:          strings.TrimSpace(g.Address),
		TransformTimeout: strings.TrimSpace(g.TransformTimeout),
		PrintTree:        g.PrintTree,
		Consolidate:      g.Consolidate,
	}
	if g.Port != nil && *g.Port > 0 && *g.Port < 65536 {
		out.Port = Int(*g.Port)
	}
	if g.Verbosity != nil && *g.Verbosity >= 0 && *g.Verbosity < 4 {
		out.Verbosity = Int(*g.Verbosity)
	}

	if strings.TrimSpace(g.SecurityToken) == "" {
		return nil, protocol.ErrMissingSecurityToken
	}
	out.SecurityToken = g.SecurityToken

	// the token alone is not an update, so it does not count here
	if out.Address == "" && out.Port == nil && out.Verbosity == nil && out.PrintTree == nil &&
		out.TransformTimeout == "" && out.Consolidate == nil {
		return nil, protocol.ErrEmptyUpdate
	}
	return json.Marshal(out)
}

// DecodeGlobals parses a GLOBALS payload back into GlobalValues.
func DecodeGlobals(payload []byte) (GlobalValues, error) {
	var in globalsPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return GlobalValues{}, fmt.Errorf("command: decode globals: %w", err)
	}
	if in.SecurityToken == "" {
		return GlobalValues{}, protocol.ErrMissingSecurityToken
	}
	return GlobalValues{
		Address:          in.Address,
		Port:             in.Port,
		Verbosity:        in.Verbosity,
		PrintTree:        in.PrintTree,
		TransformTimeout: in.TransformTimeout,
		Consolidate:      in.Consolidate,
		SecurityToken:    in.SecurityToken,
	}, nil
}
