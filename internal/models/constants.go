package models

const (
	ContextPromptTemplate = `%s

Context:
%s`
	NoContextNote = "No document context is available for this question."
)
