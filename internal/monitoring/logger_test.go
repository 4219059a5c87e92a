package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })
	Logf("frame dropped")
	if got != "frame dropped" {
		t.Errorf("custom logger saw %q, want %q", got, "frame dropped")
	}

	// nil installs the discard logger without panicking
	SetLogger(nil)
	Logf("ignored")

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	Logf("x")
	if !called {
		t.Error("replacement logger was not called")
	}
}

func TestLogfDefaultNotNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}
