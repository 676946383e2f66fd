// Package testutil provides shared test helpers and .gt3x fixtures.
//
// The fixture encoders are written independently of the decoder so that
// decoder tests check against a second implementation of the format.
package testutil

import (
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
