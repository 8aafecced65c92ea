package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig points a local store at a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	data := "app:\n  http:\n    port: 8080\nstore:\n  provider: local\n  root: " + filepath.ToSlash(dir) + "\n  path: \\cli.sumi\n  watch: false\n"
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return file
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	err := cmd.Run(context.Background(), append([]string{"sumi"}, args...))
	return out.String(), err
}

func TestCLI_CreateAddShow(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, "-c", cfg, "-p", "sumi1234", "create")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "created cli") {
		t.Errorf("create output = %q", out)
	}

	out, err = runCLI(t, "-c", cfg, "-p", "sumi1234", "add", "--kind", "folder", "--label", "bank")
	if err != nil {
		t.Fatalf("add folder: %v", err)
	}
	folder := strings.TrimSpace(out)

	if _, err := runCLI(t, "-c", cfg, "-p", "sumi1234", "add", "--parent", folder, "--kind", "card", "--label", "checking"); err != nil {
		t.Fatalf("add card: %v", err)
	}

	out, err = runCLI(t, "-c", cfg, "-p", "sumi1234", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "  bank [folder "+folder+"]") || !strings.Contains(out, "checking [card ") {
		t.Errorf("show output = %q", out)
	}

	if _, err := runCLI(t, "-c", cfg, "-p", "wrongpw1", "show"); err == nil {
		t.Error("wrong password should fail")
	}
}

func TestCLI_CreateNeedsPassword(t *testing.T) {
	cfg := writeConfig(t)
	t.Setenv("SUMI_PASSWORD", "")
	os.Unsetenv("SUMI_PASSWORD")
	if _, err := runCLI(t, "-c", cfg, "create"); err == nil {
		t.Error("create without password should fail")
	}
	if _, err := runCLI(t, "-c", cfg, "create", "--plain"); err != nil {
		t.Errorf("plain create: %v", err)
	}
	if _, err := runCLI(t, "-c", cfg, "show"); err != nil {
		t.Errorf("show plain store: %v", err)
	}
}

func TestCLI_Passwd(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := runCLI(t, "-c", cfg, "-p", "sumi1234", "create"); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "-c", cfg, "-p", "sumi1234", "passwd", "--new", "abc"); err == nil {
		t.Error("short password should fail")
	}
	if _, err := runCLI(t, "-c", cfg, "-p", "sumi1234", "passwd", "--new", "newpass1"); err != nil {
		t.Fatalf("passwd: %v", err)
	}
	if _, err := runCLI(t, "-c", cfg, "-p", "newpass1", "show"); err != nil {
		t.Errorf("show with new password: %v", err)
	}
}

func TestCLI_MissingConfigUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := runCLI(t, "-c", "absent.yaml", "create", "--plain"); err != nil {
		t.Fatalf("create with defaults: %v", err)
	}
	if _, err := os.Stat(filepath.Join("data", "cabinet.sumi")); err != nil {
		t.Errorf("default store not written: %v", err)
	}
}
