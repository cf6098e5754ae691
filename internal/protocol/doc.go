// Package protocol owns the mycelia command wire contract.
//
// Ownership boundary:
// - command value model and pre-encoding validation
// - frame encode/decode (length prefix, header, sub-header, args, payload)
// - error kinds shared by transport and listener
//
// Subpackages:
// - wire: fixed-width and length-prefixed primitives
// - schema: obj_type/cmd_type tags and the legal command table
// - frame: exact-length frame reads from a byte stream
package protocol
