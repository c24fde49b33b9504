package watcher

import (
	"context"
	"fmt"
	"os"
	"time"
)

// poller detects changes by listing the directory on an interval. It is the
// fallback when fsnotify cannot watch the directory.
type poller struct {
	dir      string
	interval time.Duration
	state    map[string]fileSnapshot
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

func newPoller(dir string, interval time.Duration) *poller {
	return &poller{dir: dir, interval: interval, state: make(map[string]fileSnapshot)}
}

// snapshot lists the regular files directly inside the directory.
func (p *poller) snapshot() (map[string]fileSnapshot, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.dir, err)
	}
	out := make(map[string]fileSnapshot, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[e.Name()] = fileSnapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return out, nil
}

// diff returns the events that turn prev into cur.
func diff(prev, cur map[string]fileSnapshot, now time.Time) []FileEvent {
	var events []FileEvent
	for name, snap := range cur {
		old, ok := prev[name]
		switch {
		case !ok:
			events = append(events, FileEvent{Name: name, Operation: OpCreate, Timestamp: now})
		case old != snap:
			events = append(events, FileEvent{Name: name, Operation: OpModify, Timestamp: now})
		}
	}
	for name := range prev {
		if _, ok := cur[name]; !ok {
			events = append(events, FileEvent{Name: name, Operation: OpDelete, Timestamp: now})
		}
	}
	return events
}

// run polls until ctx is done or stop is closed. The first scan sets the
// baseline and reports nothing.
func (p *poller) run(ctx context.Context, stop <-chan struct{}, emit func(FileEvent), fail func(error)) error {
	initial, err := p.snapshot()
	if err != nil {
		return err
	}
	p.state = initial

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			cur, err := p.snapshot()
			if err != nil {
				fail(err)
				continue
			}
			for _, ev := range diff(p.state, cur, time.Now()) {
				emit(ev)
			}
			p.state = cur
		}
	}
}
