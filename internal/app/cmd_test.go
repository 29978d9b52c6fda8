package app

import (
	"strings"
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd, err := ParseCommand([]string{})
	if err != nil {
		t.Fatalf("ParseCommand([]) error = %v", err)
	}
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_Serve(t *testing.T) {
	cmd, err := ParseCommand([]string{"serve"})
	if err != nil {
		t.Fatalf("ParseCommand([serve]) error = %v", err)
	}
	if cmd != CommandServe {
		t.Errorf("ParseCommand([serve]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_Migrate(t *testing.T) {
	cmd, err := ParseCommand([]string{"migrate"})
	if err != nil {
		t.Fatalf("ParseCommand([migrate]) error = %v", err)
	}
	if cmd != CommandMigrate {
		t.Errorf("ParseCommand([migrate]) = %q, want %q", cmd, CommandMigrate)
	}
}

func TestParseCommand_Healthcheck(t *testing.T) {
	cmd, err := ParseCommand([]string{"healthcheck"})
	if err != nil {
		t.Fatalf("ParseCommand([healthcheck]) error = %v", err)
	}
	if cmd != CommandHealthcheck {
		t.Errorf("ParseCommand([healthcheck]) = %q, want %q", cmd, CommandHealthcheck)
	}
}

func TestParseCommand_Unknown_ReturnsUsageError(t *testing.T) {
	_, err := ParseCommand([]string{"deploy"})
	if err == nil {
		t.Fatal("ParseCommand([deploy]) should return an error")
	}
	if !strings.Contains(err.Error(), "deploy") {
		t.Errorf("error %q should name the unknown command", err)
	}
	if !strings.Contains(err.Error(), "usage: campusos [serve|migrate|healthcheck]") {
		t.Errorf("error %q should include usage text", err)
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd, err := ParseCommand([]string{"migrate", "--dry-run", "value"})
	if err != nil {
		t.Fatalf("ParseCommand([migrate --dry-run value]) error = %v", err)
	}
	if cmd != CommandMigrate {
		t.Errorf("ParseCommand([migrate --dry-run value]) = %q, want %q", cmd, CommandMigrate)
	}
}

func TestCommandString(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CommandServe, "serve"},
		{CommandMigrate, "migrate"},
		{CommandHealthcheck, "healthcheck"},
	}

	for _, tt := range tests {
		if got := string(tt.cmd); got != tt.want {
			t.Errorf("Command(%q) string = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}
