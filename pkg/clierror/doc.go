// Package clierror provides structured error handling for CLI commands.
//
// CLI errors include an exit code, user-facing message, and optional
// troubleshooting hints. This separates internal protocol error details
// from what gets displayed to operators.
//
// # Usage
//
//	if err != nil {
//	    return clierror.FromProtocol(err)
//	}
package clierror
