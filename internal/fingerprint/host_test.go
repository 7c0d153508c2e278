package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"https://www.Example.com/path?q=1", "example.com"},
		{"http://blog.example.co.uk:8080/", "blog.example.co.uk"},
		{"example.org", "example.org"},
		{"WWW.example.net.", "example.net"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, Host(tt.in))
		})
	}
}

func TestTLD(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"example.com", "com"},
		{"blog.example.co.uk", "uk"},
		{"spam.XYZ", "xyz"},
		{"localhost", ""},
		{"127.0.0.1", ""},
		{"", ""},
		{"trailing.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, TLD(tt.host))
		})
	}
}
