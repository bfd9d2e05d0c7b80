// Package wire defines the protocol-level types shared by the transport,
// the request dispatcher and the registration lifecycle.
//
// LWM2M runs over CoAP. A request carries a method, a URI path, query
// parameters, an optional payload with its content format, and the
// Accept and Observe options. A response carries a code, a payload with
// its content format, and for registrations the Location-Path assigned by
// the server.
//
// # Codes
//
// Response codes use the CoAP class.detail encoding (class<<5 | detail),
// so 2.05 Content is 69 and 4.04 Not Found is 132. The values match the
// CoAP library codes and convert with a plain type conversion.
//
// # Absent Options
//
// FormatNone marks an absent Content-Format or Accept option. A nil
// Observe marks an absent Observe option.
package wire
