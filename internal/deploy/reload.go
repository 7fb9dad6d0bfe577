package deploy

import "padeploy/pkg/fileutil"

// ReloadNotifier signals the hosting process manager to reload the
// application after a deployment. A nil error means the signal was sent,
// not that the application restarted or came back healthy; the
// orchestrator performs no post-restart health probe.
type ReloadNotifier interface {
	NotifyReload() error
}

// TouchNotifier requests a reload by updating the modification time of the
// WSGI entry-point file, which the PythonAnywhere process manager watches.
type TouchNotifier struct {
	Path string
}

func (n TouchNotifier) NotifyReload() error {
	return fileutil.Touch(n.Path)
}
