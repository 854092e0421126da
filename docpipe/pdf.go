package docpipe

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF returns one Page per PDF page that carries text. Page numbers
// are 0-based.
func extractPDF(path string) (string, []Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return "", nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	var title string
	var pages []Page
	for nr := 1; nr <= ctx.PageCount; nr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, nr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(streamText(data))
		if text == "" {
			continue
		}
		if title == "" {
			title = firstLine(text)
		}
		pages = append(pages, Page{Number: nr - 1, Text: text})
	}
	return title, pages, nil
}

// streamText scans a PDF content stream and returns the operands of the
// text-showing operators (Tj, TJ, ' and "). Line-moving operators become
// newlines, positioning operators become spaces.
func streamText(data []byte) string {
	var out strings.Builder
	var pending []string

	emit := func() {
		for _, s := range pending {
			out.WriteString(s)
		}
	}
	separate := func(sep string) {
		if out.Len() > 0 && !strings.HasSuffix(out.String(), sep) && !strings.HasSuffix(out.String(), "\n") {
			out.WriteString(sep)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := literalString(data[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] != '<':
			s, n := hexString(data[i:])
			pending = append(pending, s)
			i += n
		case isRegular(c) && !isDigitLike(c):
			start := i
			for i < len(data) && isRegular(data[i]) {
				i++
			}
			op := string(data[start:i])
			switch op {
			case "Tj", "TJ":
				emit()
			case "'", `"`:
				separate("\n")
				emit()
			case "T*":
				separate("\n")
			case "Td", "TD", "Tm":
				separate(" ")
			case "ET":
				separate("\n")
			}
			if op != "" && op[0] != '/' {
				pending = pending[:0]
			}
		default:
			i++
		}
	}
	return out.String()
}

// literalString decodes a (...) string starting at data[0], honouring
// nested parentheses and escapes. It returns the text and bytes consumed.
func literalString(data []byte) (string, int) {
	var b strings.Builder
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return b.String(), i + 1
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\n', '\r':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(data[i]-'0')
					}
					b.WriteByte(byte(v))
				} else {
					b.WriteByte(e)
				}
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), i
}

// hexString decodes a <...> string. Only single-byte encodings are mapped
// to text; other bytes are dropped.
func hexString(data []byte) (string, int) {
	var digits []byte
	i := 1
	for ; i < len(data) && data[i] != '>'; i++ {
		if h := data[i]; (h >= '0' && h <= '9') || (h >= 'a' && h <= 'f') || (h >= 'A' && h <= 'F') {
			digits = append(digits, h)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	var b strings.Builder
	for k := 0; k+1 < len(digits); k += 2 {
		v := hexVal(digits[k])<<4 | hexVal(digits[k+1])
		if v >= 0x20 && v < 0x7f {
			b.WriteByte(v)
		}
	}
	return b.String(), min(i+1, len(data))
}

func hexVal(h byte) byte {
	switch {
	case h >= '0' && h <= '9':
		return h - '0'
	case h >= 'a' && h <= 'f':
		return h - 'a' + 10
	default:
		return h - 'A' + 10
	}
}

func isRegular(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0, '(', ')', '<', '>', '[', ']', '{', '}', '%':
		return false
	}
	return true
}

func isDigitLike(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}
