package mcmc

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// CSVSink writes one row per chain per record. The header is taken from
// the first record's flat sample.
type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	fields []string
}

// NewCSVSink writes to w; if w is also an io.Closer, Close closes it
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

func formatFloat(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }

// Write implements Sink
func (s *CSVSink) Write(r *Record) error {
	if s.fields == nil && len(r.Chains) > 0 {
		header := []string{"iteration", "chain", "prior_heat", "likelihood_heat", "log_prior", "log_likelihood"}
		for _, f := range r.Chains[0].Fields {
			s.fields = append(s.fields, f.Name)
		}
		if err := s.w.Write(append(header, s.fields...)); err != nil {
			return errors.Wrap(err, "Could not write CSV header")
		}
	}

	for _, c := range r.Chains {
		if len(c.Fields) != len(s.fields) {
			return errors.Errorf("Chain %d has %d fields, header has %d", c.Chain, len(c.Fields), len(s.fields))
		}
		row := []string{
			strconv.FormatInt(r.Iteration, 10),
			strconv.Itoa(c.Chain),
			formatFloat(c.PriorHeat),
			formatFloat(c.LikelihoodHeat),
			formatFloat(c.LogPrior),
			formatFloat(c.LogLikelihood),
		}
		for i, f := range c.Fields {
			if f.Name != s.fields[i] {
				return errors.Errorf("Chain %d field %d is %s, header has %s", c.Chain, i, f.Name, s.fields[i])
			}
			row = append(row, formatValue(f.Value))
		}
		if err := s.w.Write(row); err != nil {
			return errors.Wrap(err, "Could not write CSV row")
		}
	}
	s.w.Flush()
	return s.w.Error()
}

// Close implements Sink
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// JSONLSink writes each record as one JSON line with hierarchical values
type JSONLSink struct {
	enc    *json.Encoder
	closer io.Closer
}

// NewJSONLSink writes to w; if w is also an io.Closer, Close closes it
func NewJSONLSink(w io.Writer) *JSONLSink {
	s := &JSONLSink{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Write implements Sink
func (s *JSONLSink) Write(r *Record) error {
	return errors.Wrapf(s.enc.Encode(r), "Could not write record %d", r.Iteration)
}

// Close implements Sink
func (s *JSONLSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// MultiSink fans records out to several sinks
type MultiSink []Sink

// Write implements Sink
func (m MultiSink) Write(r *Record) error {
	for _, s := range m {
		if err := s.Write(r); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CreateSinks creates the CSV and JSON lines files that are named (either
// may be empty), truncating existing files. The sinks own their files.
// The result is nil when neither file is named.
func CreateSinks(csvPath, jsonlPath string) (Sink, error) {
	var ms MultiSink
	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return nil, errors.Wrapf(err, "Could not create %s", csvPath)
		}
		ms = append(ms, NewCSVSink(f))
	}
	if jsonlPath != "" {
		f, err := os.Create(jsonlPath)
		if err != nil {
			ms.Close()
			return nil, errors.Wrapf(err, "Could not create %s", jsonlPath)
		}
		ms = append(ms, NewJSONLSink(f))
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return ms, nil
}
