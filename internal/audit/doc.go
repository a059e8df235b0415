// Package audit implements the audit logger for connector actions.
//
// Each action becomes one JSON line with timestamp, user, network, action,
// parameters, outcome and code. Files rotate by size through lumberjack.
package audit
