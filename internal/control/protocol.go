// Package control implements the softapd control socket.
//
// A client connects, sends one request line and reads one response line:
//
//	request:  <op> [args...]
//	response: <code> <message>
//
// Arguments containing spaces, quotes or control characters are sent as
// Go-quoted strings.
package control

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/tomiamao/softap/internal/softap"
)

// maxLineSize bounds request and response lines.
const maxLineSize = 8192

// ErrMalformed is returned for lines that cannot be parsed.
var ErrMalformed = errors.New("malformed control line")

// A Response is the result of a request.
type Response struct {
	Code    softap.ResponseCode
	Message string
}

// OK reports whether the request succeeded.
func (r *Response) OK() bool { return r.Code == softap.SoftapStatusResult }

func (r *Response) String() string {
	return strconv.Itoa(int(r.Code)) + " " + strings.ReplaceAll(r.Message, "\n", " ")
}

func parseResponse(line string) (*Response, error) {
	line = strings.TrimRight(line, "\r\n")
	code, msg, _ := strings.Cut(line, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "bad response code in %q", line)
	}
	return &Response{Code: softap.ResponseCode(n), Message: msg}, nil
}

// quoteArg returns a as is if it is a plain word, quoted otherwise.
func quoteArg(a string) string {
	if a == "" || strings.HasPrefix(a, `"`) || strings.IndexFunc(a, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) >= 0 {
		return strconv.Quote(a)
	}
	return a
}

// formatRequest joins args into a request line, without the newline.
func formatRequest(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}

// splitRequest splits a request line into words, unquoting quoted ones.
func splitRequest(line string) ([]string, error) {
	var args []string
	rest := strings.TrimRight(line, "\r\n")
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return args, nil
		}

		if rest[0] == '"' {
			q, err := strconv.QuotedPrefix(rest)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformed, "unterminated quote in %q", line)
			}
			a, err := strconv.Unquote(q)
			if err != nil {
				return nil, errors.Wrapf(ErrMalformed, "bad quoted word %s", q)
			}
			rest = rest[len(q):]
			if rest != "" && !unicode.IsSpace(rune(rest[0])) {
				return nil, errors.Wrapf(ErrMalformed, "junk after quoted word %s", q)
			}
			args = append(args, a)
			continue
		}

		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		args = append(args, rest[:end])
		rest = rest[end:]
	}
}
