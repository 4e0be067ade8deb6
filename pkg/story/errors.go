package story

import "errors"

var (
	ErrEmptyStory           = errors.New("story text is empty")
	ErrInvalidAspectRatio   = errors.New("unsupported aspect ratio")
	ErrBusy                 = errors.New("a generation run is already in progress")
	ErrAnalysisFailed       = errors.New("analysis failed: check the API key or connection")
	ErrConfirmationRequired = errors.New("this action discards the current session and must be confirmed")
	ErrProjectNotFound      = errors.New("archived project not found")
	ErrNothingToExport      = errors.New("no completed scenes to export")
)
