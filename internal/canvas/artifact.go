// Package canvas defines what an onboarding session hands to the workflow
// canvas: one artifact per commit, delivered through a Sink.
package canvas

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
	"github.com/rodrigobaldaia/data-onboarding/internal/dataset"
)

// Kind tags an artifact.
type Kind string

const (
	KindDatasetImport Kind = "dataset_import"
	KindConnection    Kind = "connection"
)

// Artifact is the committed result of an onboarding session.
type Artifact interface {
	ArtifactID() string
	Kind() Kind
	Created() time.Time
}

// DatasetImportArtifact carries a previewed upload.
type DatasetImportArtifact struct {
	ID         string           `json:"id"`
	SourceName string           `json:"source_name"`
	Preview    *dataset.Preview `json:"preview"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (a *DatasetImportArtifact) ArtifactID() string { return a.ID }
func (a *DatasetImportArtifact) Kind() Kind         { return KindDatasetImport }
func (a *DatasetImportArtifact) Created() time.Time { return a.CreatedAt }

// ConnectionArtifact carries a configured database link.
type ConnectionArtifact struct {
	ID         string             `json:"id"`
	Descriptor connstr.Descriptor `json:"descriptor"`
	CreatedAt  time.Time          `json:"created_at"`
}

func (a *ConnectionArtifact) ArtifactID() string { return a.ID }
func (a *ConnectionArtifact) Kind() Kind         { return KindConnection }
func (a *ConnectionArtifact) Created() time.Time { return a.CreatedAt }

// NewID returns a ULID for t. IDs sort by creation time.
func NewID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NewDatasetImport builds a dataset artifact stamped with now.
func NewDatasetImport(sourceName string, p *dataset.Preview, now time.Time) *DatasetImportArtifact {
	return &DatasetImportArtifact{ID: NewID(now), SourceName: sourceName, Preview: p, CreatedAt: now.UTC()}
}

// NewConnection builds a connection artifact stamped with now.
func NewConnection(d connstr.Descriptor, now time.Time) *ConnectionArtifact {
	return &ConnectionArtifact{ID: NewID(now), Descriptor: d, CreatedAt: now.UTC()}
}
