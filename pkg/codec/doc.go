// Package codec encodes and decodes resource values for the wire.
//
// Values inside the node use symbolic keys (see package registry). On the
// wire, paths and map keys use numeric identifiers. A Codec converts in
// both directions while encoding:
//
//	c := codec.New(resolver)
//	data, err := c.Encode(wire.FormatSenMLJSON, path, value)
//	value, err := c.Decode(wire.FormatSenMLJSON, path, data)
//
// # Formats
//
//   - text/plain (0): single scalar resources
//   - link-format (40): discovery and registration object lists ([]Link)
//   - opaque (42): byte resources
//   - JSON (50): nested maps keyed by numeric ids
//   - SenML JSON (110) and SenML CBOR (112): flat record lists
//
// Text decoding returns the raw string. Callers convert it to the kind of
// the target resource with model.ParseScalar.
package codec
