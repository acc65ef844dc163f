// Package scenario drives one IPC request through the translation layer from
// a declarative file.
//
// A scenario describes the kernel state (processes, their mapped memory,
// named objects and the handles that reference them), the request a client
// sends and, optionally, the reply a service writes back. Run builds that
// state, executes the incoming pass, stages the reply and executes the
// outgoing pass, and returns a Report describing every translated word.
//
// Scenario files are YAML (.yaml, .yml) or TOML (.toml). Words are written as
// strings so both formats can carry hex literals and references:
//
//	"0x12345678"        literal word (any base strconv accepts)
//	"$handle:<name>"    value of a handle declared in the scenario
//	"$pid:<process>"    process id of a declared process
//	"$object:<name>"    (reply handles only) stage a declared object
//	"$incoming:<name>"  (reply handles only) stage the object the incoming pass
//	                    received for a declared handle
package scenario
