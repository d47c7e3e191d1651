package editor_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"oxinot/internal/editor"
)

// recordingSink captures draft traffic for assertions.
type recordingSink struct {
	mu      sync.Mutex
	drafts  map[string]string
	commits []string
}

func (s *recordingSink) SetDraft(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drafts == nil {
		s.drafts = make(map[string]string)
	}
	s.drafts[id] = content
}

func (s *recordingSink) CommitDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits = append(s.commits, id)
	return nil
}

func (s *recordingSink) draft(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[id]
}

func (s *recordingSink) committed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commits {
		if c == id {
			return true
		}
	}
	return false
}

func TestFileEditor_SaveFlowsIntoSink(t *testing.T) {
	sink := &recordingSink{}
	fe, err := editor.New(sink)
	if err != nil {
		t.Fatalf("new editor: %v", err)
	}
	defer fe.Close()

	dir := t.TempDir()
	path, err := fe.OpenBlock("block-1", "initial", dir)
	if err != nil {
		t.Fatalf("open block: %v", err)
	}

	if err := os.WriteFile(path, []byte("edited externally\n"), 0644); err != nil {
		t.Fatalf("simulate editor save: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if sink.draft("block-1") == "edited externally" && sink.committed("block-1") {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("save never reached the sink; draft=%q", sink.draft("block-1"))
		case <-time.After(20 * time.Millisecond):
		}
	}

	fe.CloseBlock("block-1")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("edit file should be removed on close")
	}
}
