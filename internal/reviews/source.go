package reviews

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMalformed marks a single row the source could not turn into a Record.
// The stream is still usable after it.
var ErrMalformed = errors.New("malformed review row")

// Source yields records sequentially. Next returns io.EOF once the stream is
// exhausted.
type Source interface {
	Next() (Record, error)
}

// CSVSource reads records from a delimited file with a header row.
type CSVSource struct {
	r       *csv.Reader
	columns map[string]int
}

// NewCSVSource reads the header from r and checks every review column is
// present.
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, f := range Fields {
		if _, ok := columns[f]; !ok {
			return nil, fmt.Errorf("header is missing column %q", f)
		}
	}
	return &CSVSource{r: cr, columns: columns}, nil
}

// OpenCSV opens path and wraps it in a CSVSource. The returned closer
// releases the file.
func OpenCSV(path string) (*CSVSource, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	src, err := NewCSVSource(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, f, nil
}

func (s *CSVSource) Next() (Record, error) {
	row, err := s.r.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return Record{}, err
	}
	get := func(name string) string {
		return row[s.columns[name]]
	}
	return Record{
		ID:                     get(FieldID),
		ProductID:              get(FieldProductID),
		UserID:                 get(FieldUserID),
		ProfileName:            get(FieldProfileName),
		HelpfulnessNumerator:   get(FieldHelpfulnessNumerator),
		HelpfulnessDenominator: get(FieldHelpfulnessDenominator),
		Score:                  get(FieldScore),
		Time:                   get(FieldTime),
		Summary:                get(FieldSummary),
		Text:                   get(FieldText),
	}, nil
}

// SliceSource replays an in-memory set of records.
type SliceSource struct {
	records []Record
	pos     int
}

func NewSliceSource(records []Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}
