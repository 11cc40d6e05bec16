package field

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	r := NewReader("ABC   XYZ ")
	require.Equal(t, "ABC", r.String("a", 0, 6))
	require.Equal(t, "XYZ", r.String("b", 6, 10))
	// Reads past the end of a short line see padding, not a panic.
	require.Equal(t, "", r.String("c", 50, 60))
	require.Empty(t, r.Issues())
}

func TestInt(t *testing.T) {
	r := NewReader("00042   X9")
	require.Equal(t, int64(42), r.Int("seq", 0, 5))
	require.Equal(t, int64(0), r.Int("blank", 5, 8))
	require.Empty(t, r.Issues())

	require.Equal(t, int64(0), r.Int("bad", 8, 10))
	require.Len(t, r.Issues(), 1)
	require.Equal(t, "bad", r.Issues()[0].Name)
}

func TestMoney(t *testing.T) {
	r := NewReader("0000000010050" + "0000000000000")
	require.Equal(t, int64(10050), r.Money("valor", 0, 13).Cents())
	require.Equal(t, int64(0), r.Money("zero", 13, 26).Cents())
	require.Empty(t, r.Issues())
}

func TestDate6(t *testing.T) {
	r := NewReader("150324" + "151299" + "000000" + "320124")
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.Date6("a", 0, 6))
	require.Equal(t, time.Date(1999, 12, 15, 0, 0, 0, 0, time.UTC), r.Date6("b", 6, 12))
	require.True(t, r.Date6("unset", 12, 18).IsZero())
	require.Empty(t, r.Issues())

	require.True(t, r.Date6("bad", 18, 24).IsZero())
	require.Len(t, r.Issues(), 1)
}

func TestDate8(t *testing.T) {
	r := NewReader("15032024" + "00000000" + "30022024")
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), r.Date8("a", 0, 8))
	require.True(t, r.Date8("unset", 8, 16).IsZero())
	require.Empty(t, r.Issues())

	// Feb 30 must not normalize into March.
	require.True(t, r.Date8("bad", 16, 24).IsZero())
	require.Len(t, r.Issues(), 1)
}
