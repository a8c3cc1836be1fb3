package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// fakeExecutor records commands and answers from canned outputs.
type fakeExecutor struct {
	dir      string
	commands []string
	outputs  map[string]string
	exitCode int
	// onExecute runs inside Execute, while the command's directory exists.
	onExecute func(dir string)
	closed    bool
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Execute(_ context.Context, stdout, _ io.Writer, command string, args ...string) (int, error) {
	cmd := strings.TrimSpace(command + " " + strings.Join(args, " "))
	f.commands = append(f.commands, cmd)
	if f.onExecute != nil {
		f.onExecute(f.dir)
	}
	if f.exitCode != 0 {
		return f.exitCode, fmt.Errorf("command exited with code %d", f.exitCode)
	}
	if f.outputs != nil {
		out, ok := f.outputs[cmd]
		if !ok {
			return 1, errors.New("command exited with code 1")
		}
		_, _ = io.WriteString(stdout, out)
	}
	return 0, nil
}

func (f *fakeExecutor) Close() error {
	f.closed = true
	return nil
}

func writePlaybooks(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "roles", "k3s", "tasks"), 0o755); err != nil {
		return err
	}
	files := map[string]string{
		"k8s.yml":                  "- hosts: all\n",
		"ansible.cfg":              "[defaults]\nhost_key_checking = False\n",
		"roles/k3s/tasks/main.yml": "- name: install\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}
