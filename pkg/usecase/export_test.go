package usecase

// ClassifyFailure is exported for testing
var ClassifyFailure = classifyFailure

// ParseSourceTime is exported for testing
var ParseSourceTime = parseSourceTime

// AlertSeverity is exported for testing
var AlertSeverity = alertSeverity

// Truncate is exported for testing
var Truncate = truncate

// Backoff is exported for testing
var Backoff = (*OutboxUseCase).backoff
