package listing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anchorFirstListing = `<html><body><pre>
<a href="/pub/time.series/">[To Parent Directory]</a>
<a href="pr.data.0.Current">pr.data.0.Current</a>      1/15/2026  8:30 AM       123456
<a href="pr.data.1.AllData">pr.data.1.AllData</a>      1/10/2026  8:30 AM       789012
<a href="pr.series">pr.series</a>              1/15/2026  8:30 AM        34567
<a href="pr.txt">pr.txt</a>                 12/1/2025 11:05 PM        -
</pre></body></html>`

const iisListing = `<html><head><title>download.bls.gov - /pub/time.series/pr/</title></head><body><H1>download.bls.gov - /pub/time.series/pr/</H1><hr>

<pre><A HREF="/pub/time.series/">[To Parent Directory]</A><br><br> 1/29/2026  8:30 AM        27562 <A HREF="/pub/time.series/pr/pr.class">pr.class</A><br> 1/29/2026  8:30 AM     &lt;dir&gt; <A HREF="/pub/time.series/pr/archive/">archive</A><br> 1/29/2026 12:05 PM     91234563 <A HREF="/pub/time.series/pr/pr.data.1.AllData">pr.data.1.AllData</A><br></pre><hr></body></html>`

func TestParser_AnchorFirstLayout(t *testing.T) {
	files := NewParser(time.UTC).Parse(anchorFirstListing)
	require.Len(t, files, 4)

	assert.Equal(t, "pr.data.0.Current", files[0].Filename)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), files[0].LastModified)
	assert.Equal(t, int64(123456), files[0].SizeBytes)

	assert.Equal(t, "pr.data.1.AllData", files[1].Filename)
	assert.Equal(t, int64(789012), files[1].SizeBytes)

	assert.Equal(t, "pr.txt", files[3].Filename)
	assert.Equal(t, int64(0), files[3].SizeBytes)
	assert.Equal(t, time.Date(2025, 12, 1, 23, 5, 0, 0, time.UTC), files[3].LastModified)
}

func TestParser_IISLayout(t *testing.T) {
	files := NewParser(time.UTC).Parse(iisListing)
	require.Len(t, files, 2)

	assert.Equal(t, "pr.class", files[0].Filename)
	assert.Equal(t, int64(27562), files[0].SizeBytes)
	assert.Equal(t, time.Date(2026, 1, 29, 8, 30, 0, 0, time.UTC), files[0].LastModified)

	assert.Equal(t, "pr.data.1.AllData", files[1].Filename)
	assert.Equal(t, time.Date(2026, 1, 29, 12, 5, 0, 0, time.UTC), files[1].LastModified)
	assert.Equal(t, int64(91234563), files[1].SizeBytes)
}

func TestParser_Location(t *testing.T) {
	ny := time.FixedZone("EST", -5*60*60)

	files := NewParser(ny).Parse(`<a href="f">f</a>  1/15/2026  8:30 AM  10`)
	require.Len(t, files, 1)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 30, 0, 0, time.UTC), files[0].LastModified.UTC())
}

func TestParser_UnparseableTimestamp(t *testing.T) {
	files := NewParser(nil).Parse(`<a href="f.csv">f.csv</a>  1/32/2026  8:30 AM  42`)
	require.Len(t, files, 1)
	assert.False(t, files[0].HasTimestamp())
	assert.Equal(t, "1/32/2026 8:30 AM", files[0].RawTimestamp)
	assert.Equal(t, int64(42), files[0].SizeBytes)
}

func TestParser_SkipsAnchorsInFreeText(t *testing.T) {
	page := `<pre><A HREF="/pub/time.series/">[To Parent Directory]</A><br><br> 1/29/2026  8:30 AM        34567 <A HREF="/pub/time.series/pr/pr.series">pr.series</A><br></pre>
<p>Questions? <a href="contact.htm">Contact us</a> any time</p>
<p>See <a href="https://www.bls.gov/help/">help</a> and <a href="notes.txt">release notes</a> 2026</p>`

	files := NewParser(time.UTC).Parse(page)
	require.Len(t, files, 1)
	assert.Equal(t, "pr.series", files[0].Filename)
	assert.True(t, files[0].HasTimestamp())
}

func TestParser_NameFromHref(t *testing.T) {
	page := `<a href="very_long_filename_for_a_series.data.1.AllData">very_long_filename_for_a_se..&gt;</a> 2026-01-15 08:30  1.2K
<a href='pr%20notes.txt'>pr notes.txt</a>   1/15/2026  8:30 AM   10
<a href="https://download.bls.gov/pub/time.series/pr/pr.class?x=1">pr.class</a>   1/15/2026  8:30 AM   -`

	files := NewParser(time.UTC).Parse(page)
	require.Len(t, files, 3)

	assert.Equal(t, "very_long_filename_for_a_series.data.1.AllData", files[0].Filename)
	assert.Equal(t, time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), files[0].LastModified)
	assert.Equal(t, int64(1200), files[0].SizeBytes)

	assert.Equal(t, "pr notes.txt", files[1].Filename)
	assert.Equal(t, int64(10), files[1].SizeBytes)

	assert.Equal(t, "pr.class", files[2].Filename)
	assert.Equal(t, int64(0), files[2].SizeBytes)
}

func TestParser_SkipsNonEntries(t *testing.T) {
	page := `<h1>Index of /pub</h1>
<a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a>
<a href="../">../</a>   1/1/2026 1:00 AM   -
<a href="sub/">sub/</a>   1/1/2026 1:00 AM   -
<a href="lonely">lonely</a>
plain text 1/1/2026 1:00 AM 12`
	assert.Empty(t, NewParser(nil).Parse(page))
}

func TestParser_Empty(t *testing.T) {
	assert.Empty(t, NewParser(nil).Parse(""))
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"1/29/2026  8:30 AM", time.Date(2026, 1, 29, 8, 30, 0, 0, time.UTC), true},
		{"12/31/2025 11:59 pm", time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC), true},
		{"2026-01-15 08:30", time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), true},
		{"15-Jan-2026 08:30", time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC), true},
		{"13/45/2026 8:30 AM", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTimestamp(tt.raw, time.UTC)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter(t *testing.T) {
	f, err := NewFilter([]string{"{series}.data.0.Current", "{series}.series", " "}, map[string]string{"series": "pr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pr.data.0.Current", "pr.series"}, f.Patterns())

	assert.True(t, f.Match("pr.data.0.Current"))
	assert.True(t, f.Match("pr.series"))
	assert.False(t, f.Match("pr.data.1.AllData"))

	glob, err := NewFilter([]string{"*.data.*"}, nil)
	require.NoError(t, err)
	assert.True(t, glob.Match("pr.data.1.AllData"))

	var none *Filter
	assert.True(t, none.Match("anything"))

	_, err = NewFilter([]string{"[unclosed"}, nil)
	assert.Error(t, err)
}
