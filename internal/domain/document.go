package domain

// Document sources.
const (
	SourceS3         = "S3"
	SourceSharePoint = "SharePoint"
	SourceUnknown    = "Unknown"
)

// DocumentFile is a reference document as listed across all hosts.
type DocumentFile struct {
	Name         string
	LastModified string
	CreatedBy    string
	Sources      []string
}
