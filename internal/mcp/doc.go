// Package mcp implements a minimal Model Context Protocol client for
// the remote tool-server subprocess. It covers exactly what the intake
// loop needs: the initialize handshake, tools/list discovery, and
// tools/call invocation over newline-delimited JSON-RPC 2.0 on stdio.
//
// Discovery happens once per process; the subprocess may be slow to
// start, so the transport launches it lazily on first use and the
// initialize call carries the caller's context deadline.
package mcp
