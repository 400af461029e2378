package models

// FileItem is one file of a Submission. The item owns its staged local copy
// for its lifetime: deleting the item deletes the file from disk.
type FileItem struct {
	// ID is an opaque local identifier.
	ID string

	// SubmissionID links the item to its parent Submission.
	SubmissionID string

	// Name is the original file name, sent to the backend when requesting
	// an upload target.
	Name string

	// LocalPath points at the staged bytes to upload.
	LocalPath string

	// Position preserves the order files were added in.
	Position int

	// BytesUploaded and BytesToUpload track transfer progress.
	BytesUploaded int64
	BytesToUpload int64

	// APIID is the remote file identifier, empty until the backend
	// confirms the upload. Once set it is never mutated.
	APIID string

	// UploadError is the last permanent upload failure, empty while the
	// item is pending or uploaded.
	UploadError string

	// TaskID correlates the item to at most one in-flight transfer task.
	// Set when the task is created, cleared when it finishes.
	TaskID string
}

// Uploaded reports whether the backend has confirmed this file.
func (f *FileItem) Uploaded() bool {
	return f.APIID != ""
}
