// Package wire implements the ODO wire codecs: the textual header framing
// that announces each message body, the length-prefixed public key encoding,
// and the CBOR modes used for message bodies.
//
// A framed message is a block of newline-terminated header lines followed by
// a blank separator line and exactly Content-Length bytes of body. The header
// carries the protocol version, the message type and the body length. Devices
// send the request form (POST /odo/<version>/msg/<type>); manufacturer
// services answer with the response form (HTTP/1.1 200 OK plus Message-Type
// and Protocol-Version lines). ParseHeader accepts both.
package wire
