package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFixed(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		scale   int
		want    int64
		wantErr bool
	}{
		{name: "simple value", field: "0000000010050", scale: 2, want: 10050},
		{name: "all zeros", field: "0000000000000", scale: 2, want: 0},
		{name: "all spaces", field: "             ", scale: 2, want: 0},
		{name: "empty", field: "", scale: 2, want: 0},
		{name: "no padding", field: "27000", scale: 2, want: 27000},
		{name: "letters", field: "00000ABC00000", scale: 2, wantErr: true},
		{name: "negative", field: "-100", scale: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFixed(tt.field, tt.scale)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Cents())
		})
	}
}

func TestString(t *testing.T) {
	require.Equal(t, "100.50", FromCents(10050).String())
	require.Equal(t, "0.00", Zero.String())
	require.Equal(t, "0.05", FromCents(5).String())
	require.Equal(t, "-3.25", FromCents(-325).String())
	require.Equal(t, "201.00", FromCents(10050).Add(FromCents(10050)).String())
}

func TestJSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(FromCents(27000))
	require.NoError(t, err)
	require.Equal(t, "270.00", string(out))

	var back Amount
	require.NoError(t, json.Unmarshal(out, &back))
	require.Equal(t, int64(27000), back.Cents())

	// Bare integers are read as whole currency units.
	require.NoError(t, json.Unmarshal([]byte(`270`), &back))
	require.Equal(t, int64(27000), back.Cents())
}
