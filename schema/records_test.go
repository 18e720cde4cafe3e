package schema

import "testing"

func TestMachineRecordAddressAndDisplayName(t *testing.T) {
	m := MachineRecord{Host: "web.example", Port: 2222}
	if got := m.Address(); got != "web.example:2222" {
		t.Fatalf("unexpected address %q", got)
	}
	if got := m.DisplayName(); got != "web.example:2222" {
		t.Fatalf("expected address fallback, got %q", got)
	}
	m.Name = "web"
	if got := m.DisplayName(); got != "web" {
		t.Fatalf("expected name, got %q", got)
	}
}

func TestIdentityRecordDescribe(t *testing.T) {
	i := IdentityRecord{Username: "alice"}
	if got := i.Describe(); got != "alice" {
		t.Fatalf("expected username fallback, got %q", got)
	}
	i.Description = "prod deploy key"
	if got := i.Describe(); got != "prod deploy key" {
		t.Fatalf("expected description, got %q", got)
	}
}

func TestCommandRecordSynthesizesMachine(t *testing.T) {
	c := CommandRecord{
		ID:         "c-1",
		Name:       "backup",
		Host:       "backup.example",
		Port:       2222,
		IdentityID: "id-9",
	}
	m := c.Machine()
	if m.ID != "command:c-1" {
		t.Fatalf("unexpected synthesized id %q", m.ID)
	}
	if m.Name != "backup" || m.Address() != "backup.example:2222" || m.IdentityID != "id-9" {
		t.Fatalf("unexpected synthesized machine %+v", m)
	}
}

func TestTerminalSizeBelowFloor(t *testing.T) {
	cases := []struct {
		size TerminalSize
		want bool
	}{
		{TerminalSize{Width: 8, Height: 8}, false},
		{TerminalSize{Width: 80, Height: 40}, false},
		{TerminalSize{Width: 7, Height: 40}, true},
		{TerminalSize{Width: 80, Height: 7}, true},
		{TerminalSize{}, true},
	}
	for _, c := range cases {
		if got := c.size.BelowFloor(); got != c.want {
			t.Fatalf("BelowFloor(%+v) = %v, want %v", c.size, got, c.want)
		}
	}
}
