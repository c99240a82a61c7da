package protocol

import "errors"

const (
	// Tag closes the first line of every request and response.
	Tag = "РКСОК/1.0"

	// Terminator ends a complete message. A valid message contains it
	// exactly once, at the very end.
	Terminator = "\r\n\r\n"

	// MaxNameRunes limits the name length, counted in runes (the names are
	// Cyrillic; bytes would be the wrong unit).
	MaxNameRunes = 30
)

// Approval exchange words. WordForbidden shares its value with
// StatusForbidden: a refusal is relayed to the client verbatim.
const (
	WordAsk       = "АМОЖНА?"
	WordAllowed   = "МОЖНА"
	WordForbidden = "НИЛЬЗЯ"
)

// Verb opens a client request.
type Verb string

const (
	VerbGet    Verb = "ОТДОВАЙ"
	VerbWrite  Verb = "ЗОПИШИ"
	VerbDelete Verb = "УДОЛИ"
)

// Verbs lists the request verbs in the order they are matched.
func Verbs() []Verb { return []Verb{VerbGet, VerbWrite, VerbDelete} }

// Status opens a server response. StatusForbidden is never produced by this
// server itself; it reaches clients only as a relayed approval refusal.
type Status string

const (
	StatusOK        Status = "НОРМАЛДЫКС"
	StatusNotFound  Status = "НИНАШОЛ"
	StatusIncorrect Status = "НИПОНЯЛ"
	StatusForbidden Status = "НИЛЬЗЯ"
)

var (
	ErrBadRequest  = errors.New("unparseable rksok request")
	ErrBadResponse = errors.New("unparseable rksok response")
)

// Request is a parsed client message.
//
// Phones carries the body lines for every verb, matching the wire rules:
// the body is validated (no surrounding whitespace, no empty lines) even on
// ОТДОВАЙ and УДОЛИ, where it is simply ignored. A ЗОПИШИ with no body is
// valid and stores an empty record.
type Request struct {
	Verb   Verb
	Name   string
	Phones []string

	// Raw preserves the exact bytes the request was parsed from, terminator
	// included. The approval exchange forwards it untouched.
	Raw []byte
}

// Response is a parsed server message as seen by a client.
type Response struct {
	Status Status
	Body   []string
}
