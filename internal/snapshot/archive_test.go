package snapshot

import (
	"archive/tar"
	"bytes"
	"testing"
)

// maliciousArchive builds a tiny tar archive containing one member whose
// name attempts to escape the extraction root.
func maliciousArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("pwned")
	hdr := &tar.Header{
		Name:     "../../etc/passwd",
		Typeflag: tar.TypeReg,
		Mode:     0o644,
		Size:     int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestSafeJoinRejectsAbsolute(t *testing.T) {
	if _, err := safeJoin("/tmp/root", "/etc/passwd"); err == nil {
		t.Errorf("safeJoin accepted an absolute member path")
	}
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	if _, err := safeJoin("/tmp/root", "../outside"); err == nil {
		t.Errorf("safeJoin accepted a traversal member path")
	}
}

func TestSafeJoinAcceptsNested(t *testing.T) {
	got, err := safeJoin("/tmp/root", "a/b/c.txt")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	want := "/tmp/root/a/b/c.txt"
	if got != want {
		t.Errorf("safeJoin = %q, want %q", got, want)
	}
}
