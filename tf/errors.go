package tf

import "errors"

// Compile-time failures, returned directly by Compile. Matching the
// teacher's own style, these are compared with ==, never wrapped.
var (
	ErrUnknownFunction  = errors.New("titlefmt: unknown function")
	ErrUnterminated     = errors.New("titlefmt: unterminated ( % or [")
	ErrArgTooLong       = errors.New("titlefmt: argument compiles to more than 255 bytes")
	ErrFieldNameTooLong = errors.New("titlefmt: field name longer than 255 bytes")
)

// ErrCorruptBytecode is returned by Evaluate only on catastrophic bytecode
// corruption (unknown sentinel kind, or a top-level built-in failure
// outside of any if-defined block). Per spec, failures inside an
// if-defined block never reach this far - they silently elide instead.
var ErrCorruptBytecode = errors.New("titlefmt: corrupt bytecode")
