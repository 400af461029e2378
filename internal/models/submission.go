// Package models defines the durable entities of the submission upload
// pipeline: a Submission owning an ordered set of FileItems.
package models

import "time"

// Submission is a durable record of a user's intent to submit one or more
// files (and/or a comment) to a course assignment. It is created by the
// composer and deleted either when the backend confirms the submission or
// when the user cancels.
type Submission struct {
	// ID is an opaque local identifier, never sent to the backend.
	ID string

	// CourseID and AssignmentID identify the target assignment.
	// Immutable after creation.
	CourseID     string
	AssignmentID string

	// Comment is an optional text comment included with the submission.
	// Immutable after creation.
	Comment string

	// SubmitError holds the last error of the final create-submission call.
	// The record is retained when that call fails so it can be retried
	// without re-uploading files.
	SubmitError string

	// CreatedAt is the creation time in UTC.
	CreatedAt time.Time
}
