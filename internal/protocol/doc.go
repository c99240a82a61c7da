// Package protocol implements the RKSOK/1.0 wire format: request and
// response framing, the АМОЖНА? approval exchange, and the parsing rules
// for both sides of a connection.
package protocol
