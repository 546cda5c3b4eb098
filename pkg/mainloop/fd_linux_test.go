//go:build linux

package mainloop

import (
	"os"
	"testing"
)

func pipeFDs(out []int) error {
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	out[0] = int(r.Fd())
	out[1] = int(w.Fd())
	return nil
}

func writeByte(t *testing.T, fd int) {
	t.Helper()
	f := os.NewFile(uintptr(fd), "pipe-write")
	if _, err := f.Write([]byte{1}); err != nil {
		t.Fatalf("write to pipe: %v", err)
	}
}
