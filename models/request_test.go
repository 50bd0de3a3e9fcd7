package models

import "testing"

func TestParseProvider(t *testing.T) {
	cases := []struct {
		input string
		want  Provider
	}{
		{"Mapillary", ProviderMapillary},
		{" google ", ProviderGoogle},
		{"Auto", ProviderAuto},
		{"", ProviderAuto},
		{"bing", ProviderAuto},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseProvider(tc.input); got != tc.want {
				t.Fatalf("ParseProvider(%q) = %q; want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCoordinatesString(t *testing.T) {
	c := Coordinates{Lat: 48.8583701, Lon: 2.2944813}
	if got := c.String(); got != "48.858370, 2.294481" {
		t.Fatalf("String() = %q", got)
	}
}
