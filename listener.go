package eel

// FileCreatedListener is notified once per physical file the sink opens, for
// external bookkeeping such as manifest tracking. A failing or panicking
// listener never aborts the write path.
type FileCreatedListener interface {
	OnFileCreated(path string)
}

// FileCreatedFunc adapts a plain function to FileCreatedListener.
type FileCreatedFunc func(path string)

func (f FileCreatedFunc) OnFileCreated(path string) {
	f(path)
}
