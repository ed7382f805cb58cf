package client

import "strings"

// FormContentType is the media type of an encoded Form.
const FormContentType = "application/x-www-form-urlencoded"

// FormField is one name/value pair of a form.
type FormField struct {
	Name  string
	Value string
}

// Form is an ordered list of fields; names may repeat.
type Form []FormField

// Add appends a field.
func (f *Form) Add(name, value string) {
	*f = append(*f, FormField{Name: name, Value: value})
}

// Encode returns the fields as name=value pairs joined by '&'. Every byte
// other than an ASCII letter or digit is percent-encoded, spaces included.
func (f Form) Encode() string {
	var b strings.Builder
	for i, field := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		escape(&b, field.Name)
		b.WriteByte('=')
		escape(&b, field.Value)
	}
	return b.String()
}

const upperhex = "0123456789ABCDEF"

func escape(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
}
