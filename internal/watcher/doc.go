// Package watcher keeps the SQLite index in sync with the cellar on
// disk. An fsnotify watch covers the cellar root, each package
// directory, and each keg directory; bursts of create/remove/rename
// events debounce into a single cellar rescan, so kegs added or deleted
// behind tapline's back show up in the index without a manual scan.
//
// The watcher runs in the foreground or as a background daemon with a
// PID file:
//
//	w, err := watcher.New(c, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := w.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer w.Stop()
//
// Daemon mode forks the current executable, writes the child PID, and
// stops on SIGTERM. StopDaemon and IsDaemonRunning operate on the PID
// file only, so any process can manage the daemon.
package watcher
