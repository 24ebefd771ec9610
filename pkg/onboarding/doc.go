// Package onboarding implements the device-initialization message exchange
// that transfers ownership credentials from a manufacturer service to a
// device.
//
// The exchange is a fixed, linear sequence of four messages:
//
//	AppStart        device → manufacturer   (type 10)
//	SetCredentials  manufacturer → device   (type 11)
//	SetHMAC         device → manufacturer   (type 12)
//	Done            manufacturer → device   (type 13)
//
// Each side drives a Session through the same forward-only state sequence.
// A step that fails leaves the session state untouched and the session is
// unrecoverable; retry policy belongs to the caller, which starts a new
// session on a new connection.
package onboarding
