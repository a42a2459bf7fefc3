package permissions

import "testing"

func TestStaticOracle(t *testing.T) {
	o := NewStatic(true)
	if !o.Granted() || !o.Request() {
		t.Fatal("initial grant not reported")
	}

	o.Set(false)
	if o.Granted() || o.Request() {
		t.Fatal("revocation not reported")
	}

	o.Set(true)
	if !o.Granted() {
		t.Fatal("restoration not reported")
	}
}

func TestSystemOracleInstructions(t *testing.T) {
	if System().Instructions() == "" {
		t.Fatal("empty instructions")
	}
}
