// Package watcher feeds a drop folder into the document index.
//
// A DirWatcher reports files appearing in a single directory, using fsnotify
// when available and falling back to polling (network mounts, some container
// volumes). Bursts of events for the same file are coalesced by a Debouncer so
// a file is only handed on once writes to it have settled.
//
// The Inbox consumes those batches: each supported file is ingested and then
// moved to processed/, or to failed/ when it cannot be ingested.
//
//	in := watcher.NewInbox(svc, watcher.InboxOptions{Dir: "data/inbox"})
//	if err := in.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	    return err
//	}
package watcher
