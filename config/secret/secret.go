// Package secret holds values such as passwords and connection strings that must
// never reach logs or traces in the clear.
package secret

import "net/url"

type String string

const redacted = "REDACTED"

// String implements fmt.Stringer and redacts the sensitive value.
func (s String) String() string {
	return redacted
}

// GoString implements fmt.GoStringer and redacts the sensitive value.
func (s String) GoString() string {
	return redacted
}

// Raw returns the sensitive value as a string.
func (s String) Raw() string {
	return string(s)
}

func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// RedactURL returns the URL held in s with any password replaced, suitable for
// tracing. Values that do not parse as a URL are redacted entirely.
func (s String) RedactURL() string {
	u, err := url.Parse(string(s))
	if err != nil || u.Scheme == "" {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}
