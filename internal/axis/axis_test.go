package axis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAny(t *testing.T) {
	p, err := Parse(Hour, "*")
	require.NoError(t, err)
	for v := Hour.Min; v <= Hour.Max; v++ {
		assert.True(t, p.Match(v))
	}
}

func TestParseExactWeekday(t *testing.T) {
	p, err := Parse(DayOfWeek, "Mon")
	require.NoError(t, err)
	assert.True(t, p.Match(0))
	assert.False(t, p.Match(1))

	p2, err := Parse(DayOfWeek, "thu")
	require.NoError(t, err)
	assert.True(t, p2.Match(3))
}

func TestParseRange(t *testing.T) {
	p, err := Parse(Month, "3..5")
	require.NoError(t, err)
	assert.False(t, p.Match(2))
	assert.True(t, p.Match(3))
	assert.True(t, p.Match(5))
	assert.False(t, p.Match(6))

	_, err = Parse(Month, "5..3")
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	p, err := Parse(DayOfWeek, "[Mon,Thu]")
	require.NoError(t, err)
	assert.True(t, p.Match(0))
	assert.True(t, p.Match(3))
	assert.False(t, p.Match(1))
}

func TestParseStep(t *testing.T) {
	p, err := Parse(Second, "*/10")
	require.NoError(t, err)
	for v := 0; v <= 59; v++ {
		assert.Equal(t, v%10 == 0, p.Match(v), "v=%d", v)
	}

	p2, err := Parse(Second, "*/10+5")
	require.NoError(t, err)
	assert.True(t, p2.Match(5))
	assert.True(t, p2.Match(15))
	assert.False(t, p2.Match(10))
}

func TestParseStepInvalid(t *testing.T) {
	_, err := Parse(Second, "*/0")
	assert.Error(t, err)

	_, err = Parse(Second, "*/10+10")
	assert.Error(t, err)

	_, err = Parse(Second, "*/10+-1")
	assert.Error(t, err)
}

func TestParseOutOfDomain(t *testing.T) {
	_, err := Parse(Month, "13")
	assert.Error(t, err)

	_, err = Parse(Month, "Mon")
	assert.Error(t, err, "weekday tokens are only valid on day_of_week")
}

// TestAxisMatchingTotality: for every axis and every value in its domain,
// Any matches, and Step(p,0) matches
// iff v is a multiple of p counted from the axis's own minimum (so on
// axes whose domain doesn't start at 0 — month, day — "*/2" still lands
// on the field's first legal value, not on whatever happens to be even).
func TestAxisMatchingTotality(t *testing.T) {
	domains := []Domain{DayOfWeek, Month, Day, Hour, Minute, Second}
	for _, d := range domains {
		any, err := Parse(d, "*")
		require.NoError(t, err)
		for v := d.Min; v <= d.Max; v++ {
			assert.True(t, any.Match(v))
		}

		step, err := Parse(d, "*/2")
		require.NoError(t, err)
		for v := d.Min; v <= d.Max; v++ {
			assert.Equal(t, (v-d.Min)%2 == 0, step.Match(v), "domain=%s v=%d", d.Name, v)
		}
	}
}

// TestStepRelativeToDomainMinimum pins down the month/day case directly:
// */2 on month must match January (1) and reject February (2), since the
// step is relative to the axis minimum (1 on these two axes), not to 0.
func TestStepRelativeToDomainMinimum(t *testing.T) {
	month, err := Parse(Month, "*/2")
	require.NoError(t, err)
	assert.True(t, month.Match(1))
	assert.False(t, month.Match(2))
	assert.True(t, month.Match(3))

	day, err := Parse(Day, "*/10")
	require.NoError(t, err)
	assert.True(t, day.Match(1))
	assert.True(t, day.Match(11))
	assert.True(t, day.Match(21))
	assert.False(t, day.Match(10))
	assert.False(t, day.Match(20))
}

func TestRoundTripString(t *testing.T) {
	cases := []string{"*", "5", "3..5", "*/10", "*/10+5"}
	for _, tok := range cases {
		p, err := Parse(Minute, tok)
		require.NoError(t, err)
		p2, err := Parse(Minute, p.String())
		require.NoError(t, err)
		for v := Minute.Min; v <= Minute.Max; v++ {
			assert.Equal(t, p.Match(v), p2.Match(v), "token=%s v=%d", tok, v)
		}
	}
}
