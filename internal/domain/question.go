package domain

import "time"

// Question is a ground truth record submitted through the data-entry form.
type Question struct {
	ID                 string
	Text               string
	IdealAnswer        string
	AgentName          string
	Tags               []string
	ReferenceDocuments []ReferenceDocument
	CreatedOn          time.Time
	SubmittedBy        string
}

// ReferenceDocument points at a file in one of the document hosts.
type ReferenceDocument struct {
	Name   string
	Pages  string
	Source string
}

// CreatedOnLayout is the date format questions are stamped with.
const CreatedOnLayout = "2006-01-02"
