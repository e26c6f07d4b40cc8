package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"ledgerd", "help"}, &out, &errOut); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(out.String(), "ledgerd <command>") {
		t.Fatalf("usage missing from output: %q", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"ledgerd", "frobnicate"}, &out, &errOut); code != 2 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Fatalf("stderr: %q", errOut.String())
	}
}

func TestRunDefaultsToServer(t *testing.T) {
	called := false
	orig := startServer
	startServer = func() { called = true }
	defer func() { startServer = orig }()

	var out, errOut bytes.Buffer
	if code := Run([]string{"ledgerd"}, &out, &errOut); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !called {
		t.Fatal("server was not started")
	}
}

func TestVerifyRequiresFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := Run([]string{"ledgerd", "verify"}, &out, &errOut); code != 2 {
		t.Fatalf("exit code %d", code)
	}
}
