package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOutputName(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"scene.txt", "scene.ppm"},
		{"scenes/glass.scene.txt", "scenes/glass.scene.ppm"},
		{"scenes/plain", "scenes/plain.ppm"},
		{"v1.2/plain", "v1.2/plain.ppm"},
		{"double..txt", "double.ppm"},
		{"../scenes/a.txt", "../scenes/a.ppm"},
	}

	for _, tc := range testCases {
		if diff := cmp.Diff(OutputName(tc.in), tc.want); diff != "" {
			t.Errorf("OutputName(%q) bad result; diff (-got +want)\n%s", tc.in, diff)
		}
	}
}
