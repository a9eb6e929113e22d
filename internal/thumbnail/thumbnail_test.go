package thumbnail

import (
	"context"
	"strings"
	"testing"

	"github.com/astrid-voss/musium/internal/prim"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StatePending: "pending", StateResizing: "resizing", StateAnalyzing: "analyzing",
		StateCompressing: "compressing", StateDone: "done",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestTmpPNGPathIncludesAlbumID(t *testing.T) {
	path := tmpPNGPath(prim.AlbumID(42))
	if !strings.Contains(path, "musium-thumb-42.png") {
		t.Fatalf("tmpPNGPath(42) = %q, want it to contain musium-thumb-42.png", path)
	}
}

func TestTaskRunEndsInDoneState(t *testing.T) {
	task := Task{AlbumID: prim.AlbumID(1), Filename: "unused"}
	_, err := task.Run(context.Background(), solidRedJPEG(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if task.State != StateDone {
		t.Fatalf("task.State = %v, want StateDone", task.State)
	}
}
