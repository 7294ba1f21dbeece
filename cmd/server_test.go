package main

import "testing"

func TestRootCmdHasNoSubcommands(t *testing.T) {
	cmd := newRootCmd()
	if len(cmd.Commands()) != 0 {
		t.Fatalf("agent exposes subcommands: %v", cmd.Commands())
	}
	for _, name := range []string{"config", "env-file"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing --%s flag", name)
		}
	}
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("positional argument accepted")
	}
}
