package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListOptions
		want ListOptions
	}{
		{"zero limit caps at max", ListOptions{}, ListOptions{Limit: MaxListLimit}},
		{"negative limit caps at max", ListOptions{Limit: -5, Offset: 3}, ListOptions{Limit: MaxListLimit, Offset: 3}},
		{"oversized limit caps at max", ListOptions{Limit: MaxListLimit + 1}, ListOptions{Limit: MaxListLimit}},
		{"in range kept", ListOptions{Limit: 25, Offset: 50}, ListOptions{Limit: 25, Offset: 50}},
		{"negative offset reset", ListOptions{Limit: 10, Offset: -1}, ListOptions{Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}
