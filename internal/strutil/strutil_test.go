package strutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitList(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{"single", []string{"single"}},
		{"", []string{""}},
	}

	for _, c := range cases {
		require.Equal(t, c.want, SplitList(c.in))
	}
}

func TestValidateOptList(t *testing.T) {
	cases := []struct {
		value   string
		wantErr bool
	}{
		{"bind,/src,/dst", false},
		{"K=V,ANOTHER=val-ue_2.5:~", false},
		{"", true},
		{"has space", true},
		{"semi;colon", true},
	}

	for _, c := range cases {
		err := ValidateOptList("--mount", c.value)
		if c.wantErr {
			require.Error(t, err)
		} else {
			require.NoError(t, err)
		}
	}
}
