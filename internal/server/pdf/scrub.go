// Package pdf removes identifying metadata from PDF documents before they
// are archived. Values are blanked in place rather than removed so that the
// byte offsets recorded in the document's cross-reference table stay valid.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
)

// Magic is the leading byte sequence every PDF must carry.
var Magic = []byte("%PDF-")

var (
	ErrNotPDF    = errors.New("data is not a PDF document")
	ErrMalformed = errors.New("malformed PDF structure")
)

// infoKeys are the document-information dictionary entries that identify the
// author or the producing software.
var infoKeys = [][]byte{
	[]byte("/Title"),
	[]byte("/Author"),
	[]byte("/Subject"),
	[]byte("/Keywords"),
	[]byte("/Creator"),
	[]byte("/Producer"),
}

// StripMetadata returns a copy of data with all document-information string
// values and embedded XMP metadata streams blanked out. The output has the
// same length as the input.
func StripMetadata(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, Magic) {
		return nil, ErrNotPDF
	}

	out := make([]byte, len(data))
	copy(out, data)

	for _, key := range infoKeys {
		if err := blankInfoValues(out, key); err != nil {
			return nil, fmt.Errorf("failed to scrub %s: %w", key, err)
		}
	}
	if err := blankXMPStreams(out); err != nil {
		return nil, fmt.Errorf("failed to scrub XMP metadata: %w", err)
	}

	return out, nil
}

// blankInfoValues overwrites the string value following every occurrence of
// key with blanks of the same length.
func blankInfoValues(data []byte, key []byte) error {
	for pos := 0; ; {
		i := bytes.Index(data[pos:], key)
		if i < 0 {
			return nil
		}
		i += pos
		pos = i + len(key)

		// Reject partial matches such as /AuthorInfo.
		if pos < len(data) && isNameChar(data[pos]) {
			continue
		}

		v := skipWhitespace(data, pos)
		if v >= len(data) {
			return nil
		}

		switch data[v] {
		case '(':
			end, err := literalStringEnd(data, v)
			if err != nil {
				return err
			}
			blank(data[v+1:end], ' ')
			pos = end + 1
		case '<':
			// Hex string, not a dictionary open.
			if v+1 < len(data) && data[v+1] == '<' {
				continue
			}
			end := bytes.IndexByte(data[v:], '>')
			if end < 0 {
				return ErrMalformed
			}
			end += v
			blank(data[v+1:end], '0')
			pos = end + 1
		}
	}
}

// blankXMPStreams overwrites the payload of every XML metadata stream.
// A metadata stream is recognized by a /Subtype /XML entry in its dictionary.
func blankXMPStreams(data []byte) error {
	subtype := []byte("/Subtype")
	xml := []byte("/XML")
	streamKW := []byte("stream")
	endstreamKW := []byte("endstream")

	for pos := 0; ; {
		i := bytes.Index(data[pos:], subtype)
		if i < 0 {
			return nil
		}
		i += pos
		pos = i + len(subtype)

		v := skipWhitespace(data, pos)
		if !bytes.HasPrefix(data[v:], xml) {
			continue
		}

		s := bytes.Index(data[v:], streamKW)
		if s < 0 {
			continue
		}
		s += v + len(streamKW)
		// The stream keyword is followed by CRLF or LF before the payload.
		if s < len(data) && data[s] == '\r' {
			s++
		}
		if s < len(data) && data[s] == '\n' {
			s++
		}

		e := bytes.Index(data[s:], endstreamKW)
		if e < 0 {
			return ErrMalformed
		}
		blank(data[s:s+e], ' ')
		pos = s + e + len(endstreamKW)
	}
}

// literalStringEnd returns the index of the closing parenthesis of the
// literal string opening at data[start], honoring escapes and nesting.
func literalStringEnd(data []byte, start int) (int, error) {
	depth := 0
	for i := start; i < len(data); i++ {
		switch data[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, ErrMalformed
}

func skipWhitespace(data []byte, i int) int {
	for i < len(data) && isWhitespace(data[i]) {
		i++
	}
	return i
}

func blank(b []byte, c byte) {
	for i := range b {
		b[i] = c
	}
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

// isNameChar reports whether c can continue a PDF name token.
func isNameChar(c byte) bool {
	if isWhitespace(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}
