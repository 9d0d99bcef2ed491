package main

import (
	"os"
	"testing"
)

func TestConfigInitAndValidate(t *testing.T) {
	tmp := t.TempDir() + "/logseer.yaml"

	rootCmd.SetArgs([]string{"config", "init", "--output", tmp})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("generated config is empty")
	}

	rootCmd.SetArgs([]string{"config", "validate", tmp})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	tmp := t.TempDir() + "/logseer.yaml"
	if err := os.WriteFile(tmp, []byte("socket: /tmp/custom.sock\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rootCmd.SetArgs([]string{"config", "init", "--output", tmp})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error when output file exists")
	}
}

func TestVersionCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
}
