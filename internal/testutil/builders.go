package testutil

import "github.com/htpdf/htpdf/internal/domain/model"

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			OwnerID:     "owner-1",
			OwnerEmail:  "owner@example.com",
			HTMLContent: "<p>hello</p>",
			Orientation: model.OrientationPortrait,
			PaperSize:   model.PaperSizeA4,
			Filename:    "document.pdf",
		},
	}
}

// WithOwner sets the owner id.
func (b *JobRequestBuilder) WithOwner(ownerID string) *JobRequestBuilder {
	b.req.OwnerID = ownerID
	return b
}

// WithOwnerEmail sets the owner email.
func (b *JobRequestBuilder) WithOwnerEmail(email string) *JobRequestBuilder {
	b.req.OwnerEmail = email
	return b
}

// WithHTML sets the HTML content.
func (b *JobRequestBuilder) WithHTML(html string) *JobRequestBuilder {
	b.req.HTMLContent = html
	return b
}

// WithOrientation sets the page orientation.
func (b *JobRequestBuilder) WithOrientation(o model.Orientation) *JobRequestBuilder {
	b.req.Orientation = o
	return b
}

// WithPaperSize sets the paper size.
func (b *JobRequestBuilder) WithPaperSize(p model.PaperSize) *JobRequestBuilder {
	b.req.PaperSize = p
	return b
}

// WithFilename sets the requested output filename.
func (b *JobRequestBuilder) WithFilename(name string) *JobRequestBuilder {
	b.req.Filename = name
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}
