// Package auth issues and verifies bearer tokens for the bridge and the gateway.
//
// Tokens are JWTs carrying a subject and a list of scopes. The bridge
// requires wallet:connect; the mock wallet's control endpoints require
// wallet:control. The HTTP gateway checks wallet:read, wallet:connect or
// wallet:sign depending on the route.
package auth
