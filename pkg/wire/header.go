package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion is the ODO protocol version carried in every header,
// encoded as major*100+minor (1.13).
const ProtocolVersion uint32 = 113

// ContentTypeCBOR is the body content type announced in headers.
const ContentTypeCBOR = "application/cbor"

// Header errors.
var (
	// ErrMalformedHeader indicates required fields could not be parsed.
	ErrMalformedHeader = errors.New("malformed message header")
)

// ConstructHeader builds the request-form header sent by devices.
// The returned bytes end with the blank separator line; the body of
// contentLength bytes follows immediately on the wire.
func ConstructHeader(protVer, msgType uint32, contentLength int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "POST /odo/%d/msg/%d HTTP/1.1\r\n", protVer, msgType)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", ContentTypeCBOR)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ConstructResponseHeader builds the response-form header sent by
// manufacturer services.
func ConstructResponseHeader(protVer, msgType uint32, contentLength int) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "Content-Type: %s\r\n", ContentTypeCBOR)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", contentLength)
	fmt.Fprintf(&b, "Protocol-Version: %d\r\n", protVer)
	fmt.Fprintf(&b, "Message-Type: %d\r\n", msgType)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ParseHeader extracts (protocolVersion, messageType, contentLength) from
// accumulated header content. Lines are expected stripped of terminators and
// joined with '\n', the form the transport layer accumulates. Both the
// request form and the response form are accepted.
func ParseHeader(hdr string) (protVer, msgType uint32, contentLength int, err error) {
	lines := strings.Split(hdr, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0, 0, 0, fmt.Errorf("%w: empty header", ErrMalformedHeader)
	}

	haveVersion := false
	haveType := false
	haveLength := false

	first := lines[0]
	switch {
	case strings.HasPrefix(first, "POST "):
		protVer, msgType, err = parseRequestLine(first)
		if err != nil {
			return 0, 0, 0, err
		}
		haveVersion, haveType = true, true
	case strings.HasPrefix(first, "HTTP/"):
		// version and type come from header lines below
	default:
		return 0, 0, 0, fmt.Errorf("%w: unrecognized start line %q", ErrMalformedHeader, first)
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-length":
			n, perr := strconv.Atoi(value)
			if perr != nil || n < 0 {
				return 0, 0, 0, fmt.Errorf("%w: bad content length %q", ErrMalformedHeader, value)
			}
			contentLength = n
			haveLength = true
		case "protocol-version":
			n, perr := strconv.ParseUint(value, 10, 32)
			if perr != nil {
				return 0, 0, 0, fmt.Errorf("%w: bad protocol version %q", ErrMalformedHeader, value)
			}
			protVer = uint32(n)
			haveVersion = true
		case "message-type":
			n, perr := strconv.ParseUint(value, 10, 32)
			if perr != nil {
				return 0, 0, 0, fmt.Errorf("%w: bad message type %q", ErrMalformedHeader, value)
			}
			msgType = uint32(n)
			haveType = true
		}
	}

	if !haveVersion || !haveType || !haveLength {
		return 0, 0, 0, fmt.Errorf("%w: missing required fields", ErrMalformedHeader)
	}
	return protVer, msgType, contentLength, nil
}

// parseRequestLine extracts version and type from "POST /odo/<ver>/msg/<type> HTTP/1.1".
func parseRequestLine(line string) (protVer, msgType uint32, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "POST" {
		return 0, 0, fmt.Errorf("%w: bad request line %q", ErrMalformedHeader, line)
	}

	parts := strings.Split(strings.TrimPrefix(fields[1], "/"), "/")
	if len(parts) != 4 || parts[0] != "odo" || parts[2] != "msg" {
		return 0, 0, fmt.Errorf("%w: bad request path %q", ErrMalformedHeader, fields[1])
	}

	ver, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad version in path %q", ErrMalformedHeader, parts[1])
	}
	typ, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad message type in path %q", ErrMalformedHeader, parts[3])
	}
	return uint32(ver), uint32(typ), nil
}
