package models

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// fieldReader walks the whitespace separated tokens of a data file
type fieldReader struct {
	pos    int
	fields []string
}

// preprocess drops blank lines and lines starting with '#'
func preprocess(data []byte) string {
	lines := strings.Split(string(data), "\n")
	keep := lines[:0]
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if len(ln) < 1 || ln[0] == '#' {
			continue
		}
		keep = append(keep, ln)
	}
	return strings.Join(keep, "\n")
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{fields: strings.Fields(preprocess(data))}
}

// read returns the next token
func (fr *fieldReader) read() (string, error) {
	if fr.pos >= len(fr.fields) {
		return "", io.EOF
	}
	p := fr.pos
	fr.pos++
	return fr.fields[p], nil
}

// readFloat reads the next token as a float
func (fr *fieldReader) readFloat() (float64, error) {
	s, err := fr.read()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}

// ReadData reads whitespace separated numbers; '#' starts a comment line
func ReadData(r io.Reader) ([]float64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "Could not read data")
	}

	fr := newFieldReader(raw)
	data := make([]float64, 0, len(fr.fields))
	for {
		x, err := fr.readFloat()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "Bad data value %d", len(data)+1)
		}
		data = append(data, x)
	}
	if len(data) < 1 {
		return nil, errors.New("No data values found")
	}
	return data, nil
}
