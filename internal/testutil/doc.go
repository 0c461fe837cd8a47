// Package testutil contains helpers used across tests to reduce boilerplate
// when scripting model turns and stubbing the remote workflow API. They are
// not intended for production usage.
package testutil
