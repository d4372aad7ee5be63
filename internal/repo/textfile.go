package repo

import (
	"bytes"
	"io"
	"os"
	"unicode/utf8"
)

// sniffLen bounds how much of a file is inspected for the text heuristic.
const sniffLen = 1024

// IsTextFile reports whether the file's leading bytes look like decodable
// text: no NUL bytes and valid UTF-8 once a truncated trailing rune is
// discarded. Unreadable files count as non-text.
func IsTextFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	return looksLikeText(buf[:n])
}

func looksLikeText(sample []byte) bool {
	if len(sample) == 0 {
		return true
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return false
	}
	// A multi-byte rune may be cut at the sniff boundary; trim back to the
	// last rune start before validating.
	trimmed := sample
	if len(trimmed) == sniffLen {
		for i := 0; i < utf8.UTFMax && len(trimmed) > 0; i++ {
			if r, _ := utf8.DecodeLastRune(trimmed); r != utf8.RuneError {
				break
			}
			trimmed = trimmed[:len(trimmed)-1]
		}
	}
	return utf8.Valid(trimmed)
}
