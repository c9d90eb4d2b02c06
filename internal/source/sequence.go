package source

import (
	"fmt"
	"strings"
)

// Sequence describes a numbered frame set in storage. Indices are zero-based,
// file numbers are one-based and zero-padded.
type Sequence struct {
	BasePath    string
	Prefix      string
	Digits      int
	Ext         string
	TotalFrames int
}

// Path maps a zero-based index to its storage path, e.g. index 0 ->
// {BasePath}/Sequence_00001.webp.
func (s Sequence) Path(index int) string {
	name := fmt.Sprintf("%s%0*d.%s", s.Prefix, s.Digits, index+1, strings.TrimPrefix(s.Ext, "."))
	if s.BasePath == "" {
		return name
	}
	return strings.TrimSuffix(s.BasePath, "/") + "/" + name
}

func (s Sequence) Valid(index int) bool {
	return index >= 0 && index < s.TotalFrames
}
