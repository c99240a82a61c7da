package protocol

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Terminated reports whether buf ends with the message terminator. Read
// loops call this after every chunk to decide when a message is complete.
func Terminated(buf []byte) bool {
	return bytes.HasSuffix(buf, []byte(Terminator))
}

// ParseRequest validates and decomposes a complete client message.
//
// The rules, in order: the message is UTF-8, opens with a known verb plus a
// space, ends with the terminator (exactly one, no space right before it);
// the first line ends with the protocol tag; the name between verb and tag
// is non-empty after trimming and at most MaxNameRunes runes; every body
// line is free of stray CR/LF and carries no surrounding whitespace.
func ParseRequest(raw []byte) (*Request, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrBadRequest)
	}
	s := string(raw)

	var verb Verb
	for _, v := range Verbs() {
		if strings.HasPrefix(s, string(v)+" ") {
			verb = v
			break
		}
	}
	if verb == "" {
		return nil, fmt.Errorf("%w: unknown verb", ErrBadRequest)
	}

	if !strings.HasSuffix(s, Terminator) {
		return nil, fmt.Errorf("%w: missing terminator", ErrBadRequest)
	}
	if strings.HasSuffix(s, " "+Terminator) {
		return nil, fmt.Errorf("%w: space before terminator", ErrBadRequest)
	}
	if strings.Count(s, Terminator) != 1 {
		return nil, fmt.Errorf("%w: more than one terminator", ErrBadRequest)
	}

	var payload []string
	for _, line := range strings.Split(s, "\r\n") {
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, "\r\n") {
			return nil, fmt.Errorf("%w: stray CR or LF", ErrBadRequest)
		}
		payload = append(payload, line)
	}
	// The verb prefix guarantees a non-empty first line.

	rest := strings.TrimPrefix(payload[0], string(verb)+" ")
	if !strings.HasSuffix(rest, " "+Tag) {
		return nil, fmt.Errorf("%w: first line must end with %s", ErrBadRequest, Tag)
	}
	name := strings.TrimSpace(strings.TrimSuffix(rest, " "+Tag))
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrBadRequest)
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		return nil, fmt.Errorf("%w: name longer than %d characters", ErrBadRequest, MaxNameRunes)
	}

	phones := payload[1:]
	for _, p := range phones {
		if p != strings.TrimSpace(p) {
			return nil, fmt.Errorf("%w: phone with surrounding whitespace", ErrBadRequest)
		}
	}

	return &Request{
		Verb:   verb,
		Name:   name,
		Phones: phones,
		Raw:    append([]byte(nil), raw...),
	}, nil
}

// Encode renders the request for the wire. Phones are emitted for ЗОПИШИ
// but also for any other verb that carries them, mirroring what ParseRequest
// accepts.
func (r *Request) Encode() []byte {
	var b strings.Builder
	b.WriteString(string(r.Verb))
	b.WriteByte(' ')
	b.WriteString(r.Name)
	b.WriteByte(' ')
	b.WriteString(Tag)
	for _, p := range r.Phones {
		b.WriteString("\r\n")
		b.WriteString(p)
	}
	b.WriteString(Terminator)
	return []byte(b.String())
}

// EncodeResponse renders a server response: the status line, optional body
// lines, then the terminator.
func EncodeResponse(st Status, body ...string) []byte {
	var b strings.Builder
	b.WriteString(string(st))
	b.WriteByte(' ')
	b.WriteString(Tag)
	for _, line := range body {
		b.WriteString("\r\n")
		b.WriteString(line)
	}
	b.WriteString(Terminator)
	return []byte(b.String())
}

// ParseResponse decomposes a server message on the client side. Relayed
// approval refusals open with НИЛЬЗЯ and may carry an arbitrary first line,
// so only the status word and the terminator are enforced here.
func ParseResponse(raw []byte) (*Response, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrBadResponse)
	}
	s := string(raw)
	if !strings.HasSuffix(s, Terminator) {
		return nil, fmt.Errorf("%w: missing terminator", ErrBadResponse)
	}

	var status Status
	for _, st := range []Status{StatusOK, StatusNotFound, StatusIncorrect, StatusForbidden} {
		if strings.HasPrefix(s, string(st)+" ") {
			status = st
			break
		}
	}
	if status == "" {
		return nil, fmt.Errorf("%w: unknown status", ErrBadResponse)
	}

	var body []string
	lines := strings.Split(strings.TrimSuffix(s, Terminator), "\r\n")
	for _, line := range lines[1:] {
		if line != "" {
			body = append(body, line)
		}
	}
	return &Response{Status: status, Body: body}, nil
}

// EncodeApprovalRequest frames a client's raw request for the validation
// server: the АМОЖНА? line followed by the original bytes untouched.
func EncodeApprovalRequest(rawRequest []byte) []byte {
	out := make([]byte, 0, len(WordAsk)+1+len(Tag)+2+len(rawRequest))
	out = append(out, WordAsk...)
	out = append(out, ' ')
	out = append(out, Tag...)
	out = append(out, "\r\n"...)
	out = append(out, rawRequest...)
	return out
}

// ParseApprovalReply classifies the validation server's answer. The reply
// must open with МОЖНА or НИЛЬЗЯ followed by a space; anything else is
// unparseable and the caller answers the client with НИПОНЯЛ.
func ParseApprovalReply(raw []byte) (allowed bool, err error) {
	if !utf8.Valid(raw) {
		return false, fmt.Errorf("%w: invalid utf-8", ErrBadResponse)
	}
	s := string(raw)
	switch {
	case strings.HasPrefix(s, WordAllowed+" "):
		return true, nil
	case strings.HasPrefix(s, WordForbidden+" "):
		return false, nil
	default:
		return false, fmt.Errorf("%w: expected %s or %s", ErrBadResponse, WordAllowed, WordForbidden)
	}
}
