// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ArtifactKind identifies the kind of full-text artifact on disk.
type ArtifactKind string

const (
	KindNone ArtifactKind = ""
	KindPDF  ArtifactKind = "pdf"
	KindXML  ArtifactKind = "xml"
)

// Record is one line of the harvest state file: the last known acquisition
// outcome for a single DOI. A nil Success means the identifier has never
// been attempted; false means every strategy declined on the last run and
// the identifier is eligible for retry.
type Record struct {
	// DOI is the canonical persistent identifier of the work.
	DOI string `json:"doi" yaml:"doi"`

	// Title is the work title, if the metadata harvest provided one.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Relevant is the domain-relevance annotation produced by the external
	// classifier. nil means unclassified; false excludes the record from
	// scheduling.
	Relevant *bool `json:"relevant,omitempty" yaml:"relevant,omitempty"`

	// Success is nil until the identifier has been attempted at least once.
	Success *bool `json:"success" yaml:"success"`

	// Kind is the artifact kind that was downloaded, or empty.
	Kind ArtifactKind `json:"type,omitempty" yaml:"type,omitempty"`

	// Path is the on-disk artifact path, or empty.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// URL is the resolved source URL the artifact came from, or empty.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Succeeded reports whether a prior run already produced an artifact.
func (r *Record) Succeeded() bool {
	return r.Success != nil && *r.Success
}

// Excluded reports whether the classifier flagged the record as outside
// the target domain.
func (r *Record) Excluded() bool {
	return r.Relevant != nil && !*r.Relevant
}

// MarkSuccess records a completed acquisition. It never regresses a prior
// success to a lesser outcome.
func (r *Record) MarkSuccess(kind ArtifactKind, path, url string) {
	t := true
	r.Success = &t
	r.Kind = kind
	r.Path = path
	r.URL = url
}

// MarkFailure records that every strategy declined. A prior success is
// left untouched.
func (r *Record) MarkFailure() {
	if r.Succeeded() {
		return
	}
	f := false
	r.Success = &f
	r.Kind = KindNone
	r.Path = ""
	r.URL = ""
}
