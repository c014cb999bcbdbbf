package slots

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-swiper/internal/obs"
)

func tok(t, label string) Token {
	return Token("rgs://resy/2/1843946/2/2022-12-18/2022-12-18/" + t + "/2/" + label)
}

func TestParse(t *testing.T) {
	s, err := Parse(tok("20:15:00", "Indoor Dining"))
	require.NoError(t, err)
	assert.Equal(t, TimeKey("20:15:00"), s.Time)
	assert.Equal(t, "Indoor Dining", s.Label)
	assert.Equal(t, 2, s.PartySize)
	assert.Equal(t, "2022-12-18", s.Date)
	assert.Equal(t, "1843946", s.VenueID)
}

func TestParseMalformed(t *testing.T) {
	cases := []Token{
		"",
		"garbage",
		"a/b/c",
		"rgs://resy/2/1/2/2022-12-18/2022-12-18/25:99:00/2/Indoor",
		"rgs://resy/2/1/2/2022-12-18/2022-12-18/20:00:00/two/Indoor",
		"rgs://resy/2/1/2/2022-12-18/2022-12-18/20:00:00/2/",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, "token %q", c)
	}
}

func TestParseTimeKey(t *testing.T) {
	k, err := ParseTimeKey("19:00")
	require.NoError(t, err)
	assert.Equal(t, TimeKey("19:00:00"), k)

	k, err = ParseTimeKey(" 19:15:00 ")
	require.NoError(t, err)
	assert.Equal(t, TimeKey("19:15:00"), k)

	_, err = ParseTimeKey("7pm")
	assert.Error(t, err)

	ks, err := ParseTimeKeys([]string{"20:00", "", "19:30:00"})
	require.NoError(t, err)
	assert.Equal(t, []TimeKey{"20:00:00", "19:30:00"}, ks)
}

func TestParseTimeKeyPadsSingleDigitHour(t *testing.T) {
	for _, in := range []string{"9:00:00", "9:00", "09:00"} {
		k, err := ParseTimeKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, TimeKey("09:00:00"), k, in)
	}

	idx := BuildIndex([]Token{tok("09:00:00", "Indoor")}, nil, nil)
	k, err := ParseTimeKey("9:00:00")
	require.NoError(t, err)
	got, ok := idx.Lookup(k)
	assert.True(t, ok)
	assert.Equal(t, tok("09:00:00", "Indoor"), got)
}

func TestParseNormalizesTokenTime(t *testing.T) {
	s, err := Parse(tok("9:30:00", "Patio"))
	require.NoError(t, err)
	assert.Equal(t, TimeKey("09:30:00"), s.Time)
}

func TestBuildIndexIndoorOnly(t *testing.T) {
	t1 := tok("20:00:00", "Indoor")
	t2 := tok("20:15:00", "Outdoor")

	idx := BuildIndex([]Token{t1, t2}, LabelFilter("indoor"), nil)

	assert.Equal(t, Index{"20:00:00": t1}, idx)
}

func TestBuildIndexDropsMalformedWithOneEventEach(t *testing.T) {
	var buf bytes.Buffer
	lg := obs.NewLoggerTo(&buf, false)
	good := tok("19:00:00", "Dining Room")

	idx := BuildIndex([]Token{"bad-one", good, "x/y", "rgs://resy/2/1/2/d/d/nope/2/Bar"}, nil, lg)

	assert.Equal(t, Index{"19:00:00": good}, idx)
	assert.Equal(t, 3, strings.Count(buf.String(), `"event":"slot_dropped"`))
}

func TestBuildIndexDuplicateTimesKeepFilteredFirst(t *testing.T) {
	patio := tok("20:00:00", "Patio")
	indoor := tok("20:00:00", "Indoor Dining")
	bar := tok("20:00:00", "Indoor Bar")

	idx := BuildIndex([]Token{patio, indoor, bar}, LabelFilter("indoor"), nil)
	assert.Equal(t, Index{"20:00:00": indoor}, idx)

	all := BuildIndex([]Token{patio, indoor}, nil, nil)
	assert.Equal(t, Index{"20:00:00": patio}, all)
}

func TestBuildIndexIsDeterministic(t *testing.T) {
	in := []Token{tok("18:00:00", "Bar"), tok("18:30:00", "Indoor"), "junk", tok("18:00:00", "Indoor")}
	a := BuildIndex(in, nil, nil)
	b := BuildIndex(in, nil, nil)
	assert.Equal(t, a, b)
	assert.Equal(t, []TimeKey{"18:00:00", "18:30:00"}, a.Times())
}

func TestLabelFilterEmptyAcceptsAll(t *testing.T) {
	assert.Nil(t, LabelFilter())
	assert.Nil(t, LabelFilter(" ", ""))
}
