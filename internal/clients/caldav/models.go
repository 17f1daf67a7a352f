package caldav

// Calendar represents a calendar collection found during discovery
type Calendar struct {
	Path        string
	DisplayName string
	Description string
}

// Resource is one <response> entry of a PROPFIND multistatus
type Resource struct {
	Href         string
	DisplayName  string
	ContentType  string
	IsCollection bool
}
