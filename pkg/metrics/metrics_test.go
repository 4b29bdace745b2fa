package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteTextfile(t *testing.T) {
	AttemptsTotal.WithLabelValues("normal").Inc()
	NodeFailuresTotal.WithLabelValues("reachability").Inc()

	path := filepath.Join(t.TempDir(), "scrun.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	for _, want := range []string{"scrun_attempts_total", "scrun_node_failures_total"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %s", want)
		}
	}
}

func TestWriteTextfile_EmptyPath(t *testing.T) {
	if err := WriteTextfile(""); err != nil {
		t.Errorf("WriteTextfile(\"\") error = %v", err)
	}
}
