package editor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DraftSink receives text from the editing surface under the draft/commit
// discipline: SetDraft records in-progress text, CommitDraft flushes it.
// engine.Engine satisfies this.
type DraftSink interface {
	SetDraft(id, content string)
	CommitDraft(ctx context.Context, id string) error
}

// FileEditor is a file-based external editing surface: a block's content is
// materialized as a markdown file, any editor can modify it, and saves flow
// back into the engine as drafts that are committed immediately. Useful for
// editing a block in $EDITOR while the rest of the outline stays live.
type FileEditor struct {
	watcher *fsnotify.Watcher
	sink    DraftSink
	mu      sync.RWMutex
	editing map[string]string // filePath -> blockID
}

// New creates a FileEditor feeding the given sink.
func New(sink DraftSink) (*FileEditor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	fe := &FileEditor{
		watcher: watcher,
		sink:    sink,
		editing: make(map[string]string),
	}

	go fe.watchLoop()

	return fe, nil
}

// OpenBlock writes a block's content to <dir>/<blockID>.md and starts
// watching it. Returns the file path to hand to the external editor.
func (fe *FileEditor) OpenBlock(blockID, content, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create edit dir: %w", err)
	}
	path := filepath.Join(dir, blockID+".md")
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write edit file: %w", err)
	}

	fe.mu.Lock()
	fe.editing[absPath] = blockID
	fe.mu.Unlock()

	// Watch the directory (fsnotify watches dirs for file events)
	if err := fe.watcher.Add(filepath.Dir(absPath)); err != nil {
		return "", fmt.Errorf("watch edit dir: %w", err)
	}
	return absPath, nil
}

// CloseBlock stops watching a block's edit file and removes it.
func (fe *FileEditor) CloseBlock(blockID string) {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	for path, id := range fe.editing {
		if id == blockID {
			delete(fe.editing, path)
			_ = os.Remove(path)
			break
		}
	}
}

// Close stops the watcher.
func (fe *FileEditor) Close() error {
	return fe.watcher.Close()
}

func (fe *FileEditor) watchLoop() {
	for {
		select {
		case event, ok := <-fe.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) {
				absPath, _ := filepath.Abs(event.Name)
				fe.mu.RLock()
				blockID, watched := fe.editing[absPath]
				fe.mu.RUnlock()

				if watched {
					data, err := os.ReadFile(absPath)
					if err != nil {
						log.Printf("[editor] read %s: %v", absPath, err)
						continue
					}
					content := strings.TrimRight(string(data), "\n")
					fe.sink.SetDraft(blockID, content)
					if err := fe.sink.CommitDraft(context.Background(), blockID); err != nil {
						log.Printf("[editor] commit block %s: %v", blockID, err)
					}
				}
			}
		case err, ok := <-fe.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[editor] watcher error: %v", err)
		}
	}
}
