package configsum

import "testing"

func TestChecksumDeterministic(t *testing.T) {
	a := Checksum("agent toml", "tasks toml")
	b := Checksum("agent toml", "tasks toml")
	if a != b {
		t.Fatalf("expected deterministic checksum, got %s != %s", a, b)
	}
}

func TestChecksumSensitiveToEitherInput(t *testing.T) {
	base := Checksum("agent toml", "tasks toml")
	if Checksum("agent toml v2", "tasks toml") == base {
		t.Fatal("expected checksum to change with agentToml")
	}
	if Checksum("agent toml", "tasks toml v2") == base {
		t.Fatal("expected checksum to change with tasksToml")
	}
}
