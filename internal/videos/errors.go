package videos

import "errors"

var (
	// ErrInvalidVideo indicates a video without a title or playable URL.
	ErrInvalidVideo = errors.New("video requires a title and url")
	// ErrEmptyComment indicates a comment with no visible text.
	ErrEmptyComment = errors.New("comment is empty")
	// ErrCommentTooLong indicates a comment over MaxCommentLength characters.
	ErrCommentTooLong = errors.New("comment is too long")
	// ErrInvalidWatchTime indicates a non-positive watch time increment.
	ErrInvalidWatchTime = errors.New("watch time must be positive")
)
