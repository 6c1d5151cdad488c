// Package wire defines the inter-process message model and its binary wire
// format for the cfnet local messaging channel, plus the status codes of the
// classic framed protocol.
//
// # Message Frame
//
// Every message travels as one scatter I/O operation with two parts:
//
//	┌──────────────────────────────┐
//	│ Header (8 bytes, native)     │  request kind (int32), sender pid (int32)
//	├──────────────────────────────┤
//	│ Payload slot (1024 bytes)    │  always fully sent, zero padded
//	└──────────────────────────────┘
//	  + ancillary data (SCM_RIGHTS, ShareOwnership only)
//
// A WriteText slot is laid out as:
//
//	┌──────────┬──────────┬────────────┬─────────┐
//	│ type (2) │ len (2)  │ text (len) │ zeros   │
//	└──────────┴──────────┴────────────┴─────────┘
//
// with type and len in network byte order. A ShareOwnership slot is all zero;
// the descriptor itself travels as ancillary data and the kernel installs a
// duplicate in the receiving process.
//
// # Ownership
//
// A Message built by the sender never owns the file it references: closing the
// message leaves the caller's file open. A Message decoded from the wire owns
// the received duplicate and the receiver must Close it.
package wire
