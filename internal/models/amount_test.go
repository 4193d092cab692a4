package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "0", want: "0.00"},
		{input: "12.5", want: "12.50"},
		{input: "-3.07", want: "-3.07"},
		{input: "100.00", want: "100.00"},
		{input: "1.230", want: "1.23"},
		{input: "1.234", wantErr: true},
		{input: "", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "NaN", wantErr: true},
		{input: "Inf", wantErr: true},
		{input: "92233720368547758.08", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidAmountFormat), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestAmountArithmetic(t *testing.T) {
	a := MustParseAmount("10.10")
	b := MustParseAmount("0.20")

	require.Equal(t, "10.30", a.Add(b).String())
	require.Equal(t, "9.90", a.Sub(b).String())
	require.Equal(t, "-10.10", a.Neg().String())
	require.True(t, b.Sub(a).IsNegative())
	require.True(t, a.IsPositive())
	require.True(t, ZeroAmount.IsZero())

	require.Equal(t, -1, b.Cmp(a))
	require.Equal(t, 1, a.Cmp(b))
	require.Equal(t, 0, MustParseAmount("1.5").Cmp(MustParseAmount("1.50")))
	require.True(t, MustParseAmount("1.5").Equal(MustParseAmount("1.50")))
}

func TestAmountNoFloatDrift(t *testing.T) {
	sum := ZeroAmount
	tenCents := MustParseAmount("0.10")
	for i := 0; i < 1000; i++ {
		sum = sum.Add(tenCents)
	}
	require.Equal(t, "100.00", sum.String())
	require.Equal(t, int64(10000), sum.MinorUnits())
}

func TestAmountMinorUnits(t *testing.T) {
	a := NewAmountFromMinor(12345)
	require.Equal(t, "123.45", a.String())
	require.Equal(t, int64(12345), a.MinorUnits())
	require.Equal(t, int64(-5), MustParseAmount("-0.05").MinorUnits())
}

func TestAmountJSON(t *testing.T) {
	var body struct {
		Amount Amount `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount": 42.5}`), &body))
	require.Equal(t, "42.50", body.Amount.String())

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "7.25"}`), &body))
	require.Equal(t, "7.25", body.Amount.String())

	err := json.Unmarshal([]byte(`{"amount": 0.001}`), &body)
	require.Error(t, err)
	require.Equal(t, KindInvalidAmountFormat, KindOf(err))

	out, err := json.Marshal(body)
	require.NoError(t, err)
	require.JSONEq(t, `{"amount": 7.25}`, string(out))
}
