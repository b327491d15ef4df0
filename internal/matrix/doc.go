// Package matrix implements the control protocol spoken by Orei-style HDMI
// matrix switches over a telnet or RS-232 console.
//
// The device has no request identifiers, no terminator and no length prefix.
// A reply is whatever the matrix sends after a command until the line goes
// quiet, so the client works in three layers:
//
//   - Channel owns the single session. It dials on demand, writes one
//     command at a time under a gate, frames the reply with an idle timeout
//     and hands the raw bytes to Sanitize.
//   - Sanitize turns the raw burst into clean lines, removing the command
//     echo, banners and prompts.
//   - The Parse* functions extract typed fields from clean lines. They never
//     perform I/O.
//
// Matrix is the typed facade used by the bridge and the matrixctl console.
//
// # Connection URLs
//
//	tcp://192.168.1.50:23        plain TCP (port defaults to 23)
//	telnet://192.168.1.50        TCP with telnet option negotiation
//	serial:///dev/ttyUSB0?baud=9600
//
// # Failure handling
//
// The client never retries. Any I/O failure closes the session and is
// returned to the caller; the next command dials again.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Commands issued through
// one Channel never interleave on the wire. Two Channels talking to the same
// physical device are not coordinated.
package matrix
