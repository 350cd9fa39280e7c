package codec

import "strings"

// Lines encodes a list of strings one per line. Values must not contain '\n';
// request keys built from url.URL.String never do.
type Lines struct{}

func (Lines) Encode(ss []string) ([]byte, error) { return []byte(strings.Join(ss, "\n")), nil }
func (Lines) Decode(b []byte) ([]string, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return strings.Split(string(b), "\n"), nil
}
