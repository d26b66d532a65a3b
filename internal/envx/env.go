// Package envx provides small helpers for reading configuration overrides
// from environment variables. The server takes all of its runtime settings
// from the environment (plus an optional JSON file), never from CLI flags,
// so these helpers are the only input plumbing the config layer needs.
package envx

import (
	"fmt"
	"os"
	"strconv"
)

// LookupString returns the value of the named environment variable and
// whether it should be applied as an override.
//
// A variable that is unset or set to the empty string reports false, so an
// empty value never wipes out a configured default.
func LookupString(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// LookupInt returns the named environment variable parsed as a base-10
// integer and whether it was set.
//
// A set-but-malformed value is a deployment error, not a condition the
// caller can recover from, so it panics with the variable name in the
// message. Configuration loading happens once at startup, before any
// request is served.
func LookupInt(name string) (int, bool) {
	v, ok := LookupString(name)
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("environment variable %s: %v", name, err))
	}
	return n, true
}
