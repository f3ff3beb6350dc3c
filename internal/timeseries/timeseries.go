// Package timeseries speaks the BLS public timeseries API: chunked year
// requests, response decoding and the TSV rendering of merged rows.
package timeseries

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultURL       = "https://api.bls.gov/publicAPI/v2/timeseries/data/"
	DefaultStartYear = 2005

	// the API caps the years per request by registration level
	MaxYearsAnonymous  = 10
	MaxYearsRegistered = 20

	statusSucceeded = "REQUEST_SUCCEEDED"
)

var DefaultSeries = []string{"LNS14000000", "LNS11300000"}

var ErrRequestFailed = errors.New("timeseries request failed")

// Request is the POST payload of one API call
type Request struct {
	SeriesIDs       []string `json:"seriesid"`
	StartYear       string   `json:"startyear"`
	EndYear         string   `json:"endyear"`
	RegistrationKey string   `json:"registrationKey,omitempty"`
}

func NewRequest(series []string, chunk Chunk, apiKey string) *Request {
	return &Request{
		SeriesIDs:       series,
		StartYear:       strconv.Itoa(chunk.Start),
		EndYear:         strconv.Itoa(chunk.End),
		RegistrationKey: apiKey,
	}
}

type Response struct {
	Status  string   `json:"status"`
	Message []string `json:"message"`
	Results struct {
		Series []Series `json:"series"`
	} `json:"Results"`
}

type Series struct {
	SeriesID string      `json:"seriesID"`
	Data     []DataPoint `json:"data"`
}

type DataPoint struct {
	Year      string     `json:"year"`
	Period    string     `json:"period"`
	Value     string     `json:"value"`
	Footnotes []Footnote `json:"footnotes"`
}

type Footnote struct {
	Code string `json:"code"`
}

// Row is one observation as written to the TSV
type Row struct {
	SeriesID      string
	Year          string
	Period        string
	Value         string
	FootnoteCodes string
}

type Chunk struct {
	Start int
	End   int
}

// YearChunks splits [start, end] into inclusive windows of at most size
// years. A non-positive size means MaxYearsRegistered.
func YearChunks(start, end, size int) []Chunk {
	if size <= 0 {
		size = MaxYearsRegistered
	}
	var chunks []Chunk
	for cur := start; cur <= end; cur += size {
		chunks = append(chunks, Chunk{Start: cur, End: min(end, cur+size-1)})
	}
	return chunks
}

// ClampMaxYears limits the requested window to what the key allows
func ClampMaxYears(requested int, registered bool) int {
	limit := MaxYearsAnonymous
	if registered {
		limit = MaxYearsRegistered
	}
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

// Rows flattens a successful response. Points without a year or period are
// skipped.
func (r *Response) Rows() ([]Row, error) {
	if r.Status != statusSucceeded {
		msg := strings.Join(r.Message, "; ")
		if msg == "" {
			msg = "status " + strconv.Quote(r.Status)
		}
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, msg)
	}

	var rows []Row
	for _, s := range r.Results.Series {
		for _, p := range s.Data {
			if p.Year == "" || p.Period == "" {
				continue
			}
			codes := make([]string, 0, len(p.Footnotes))
			for _, f := range p.Footnotes {
				if f.Code != "" {
					codes = append(codes, f.Code)
				}
			}
			rows = append(rows, Row{
				SeriesID:      s.SeriesID,
				Year:          p.Year,
				Period:        p.Period,
				Value:         p.Value,
				FootnoteCodes: strings.Join(codes, ","),
			})
		}
	}
	return rows, nil
}

// Merge drops rows missing a key part, keeps the first row per
// (series, year, period) and sorts by series, numeric year and period.
func Merge(rows []Row) []Row {
	type key struct{ series, year, period string }
	seen := make(map[key]struct{}, len(rows))
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.SeriesID == "" || row.Year == "" || row.Period == "" {
			continue
		}
		k := key{row.SeriesID, row.Year, row.Period}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, row)
	}

	slices.SortStableFunc(out, func(a, b Row) int {
		return cmp.Or(
			cmp.Compare(a.SeriesID, b.SeriesID),
			cmp.Compare(yearNumber(a.Year), yearNumber(b.Year)),
			cmp.Compare(a.Period, b.Period),
		)
	})
	return out
}

func yearNumber(year string) int {
	n, err := strconv.Atoi(year)
	if err != nil {
		return 0
	}
	return n
}

var header = []string{"series_id", "year", "period", "value", "footnote_codes"}

// RenderTSV writes rows under a fixed header, one tab-separated line each
func RenderTSV(rows []Row) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Join(header, "\t"))
	buf.WriteByte('\n')
	for _, r := range rows {
		buf.WriteString(strings.Join([]string{r.SeriesID, r.Year, r.Period, r.Value, r.FootnoteCodes}, "\t"))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
