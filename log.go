package redis

import "github.com/rs/zerolog"

// nopLogger is the library's default: silent unless an embedder wires
// in a real zerolog.Logger via Client.SetLogger, matching the
// teacher's posture of doing no logging of its own.
var nopLogger = zerolog.Nop()
