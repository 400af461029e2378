// Package api defines the backend collaborators of the upload pipeline and
// an HTTP implementation of them: requesting a per-file upload target and
// posting the final composed submission.
package api

import "context"

// SubmissionContext identifies the assignment a submission belongs to.
type SubmissionContext struct {
	CourseID     string
	AssignmentID string
	Comment      string
}

// FileMetadata describes the file an upload target is requested for.
type FileMetadata struct {
	Name string
	Size int64
}

// UploadTarget is a pre-signed destination the client must upload the file
// bytes to directly: a URL plus form fields that go ahead of the file part.
type UploadTarget struct {
	URL    string            `json:"upload_url"`
	Params map[string]string `json:"upload_params"`
}

// UploadTargetAPI mints one upload target per file.
type UploadTargetAPI interface {
	RequestTarget(ctx context.Context, sctx SubmissionContext, meta FileMetadata) (*UploadTarget, error)
}

// CreateSubmissionAPI posts the composed submission once every file has a
// remote id. There is no partial-success mode.
type CreateSubmissionAPI interface {
	CreateSubmission(ctx context.Context, sctx SubmissionContext, fileIDs []string) error
}
