package progress

import (
	"fmt"

	"github.com/wippyai/anki-bridge/errors"
	"github.com/wippyai/anki-bridge/wire"
)

// Kind is the category of a progress event.
type Kind int

const (
	KindMediaSync Kind = iota + 1
)

func (k Kind) String() string {
	switch k {
	case KindMediaSync:
		return "media_sync"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one decoded progress notification. MediaSync is set when Kind is
// KindMediaSync.
type Event struct {
	MediaSync MediaSyncProgress
	Kind      Kind
}

func (e Event) String() string {
	if e.Kind == KindMediaSync && e.MediaSync != nil {
		return "media sync: " + e.MediaSync.String()
	}
	return e.Kind.String()
}

// MediaSyncProgress is one step of a media sync. It is one of
// MediaSyncDownloadedChanges, MediaSyncDownloadedFiles, MediaSyncUploaded or
// MediaSyncRemovedFiles.
type MediaSyncProgress interface {
	fmt.Stringer
	isMediaSyncProgress()
}

// MediaSyncDownloadedChanges counts media changes fetched from the server.
type MediaSyncDownloadedChanges struct {
	Changes int
}

// MediaSyncDownloadedFiles counts media files fetched from the server.
type MediaSyncDownloadedFiles struct {
	Files int
}

// MediaSyncUploaded counts files and deletions sent to the server.
type MediaSyncUploaded struct {
	Files     int
	Deletions int
}

// MediaSyncRemovedFiles counts local files removed on server instruction.
type MediaSyncRemovedFiles struct {
	Files int
}

func (MediaSyncDownloadedChanges) isMediaSyncProgress() {}
func (MediaSyncDownloadedFiles) isMediaSyncProgress()   {}
func (MediaSyncUploaded) isMediaSyncProgress()          {}
func (MediaSyncRemovedFiles) isMediaSyncProgress()      {}

func (p MediaSyncDownloadedChanges) String() string {
	return fmt.Sprintf("downloaded %d changes", p.Changes)
}

func (p MediaSyncDownloadedFiles) String() string {
	return fmt.Sprintf("downloaded %d files", p.Files)
}

func (p MediaSyncUploaded) String() string {
	return fmt.Sprintf("uploaded %d files, %d deletions", p.Files, p.Deletions)
}

func (p MediaSyncRemovedFiles) String() string {
	return fmt.Sprintf("removed %d files", p.Files)
}

// Decode parses an encoded Progress message. A malformed union is reported
// as an *errors.Error for which errors.IsMalformedUnion holds.
func Decode(raw []byte) (Event, error) {
	var p wire.Progress
	if err := p.Unmarshal(raw); err != nil {
		return Event{}, err
	}
	ms, err := decodeMediaSync(p.MediaSync)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: KindMediaSync, MediaSync: ms}, nil
}

func decodeMediaSync(m *wire.MediaSyncProgress) (MediaSyncProgress, error) {
	switch v := m.Value.(type) {
	case wire.DownloadedChanges:
		return MediaSyncDownloadedChanges{Changes: int(v)}, nil
	case wire.DownloadedFiles:
		return MediaSyncDownloadedFiles{Files: int(v)}, nil
	case *wire.MediaSyncUploadProgress:
		return MediaSyncUploaded{Files: int(v.Files), Deletions: int(v.Deletions)}, nil
	case wire.RemovedFiles:
		return MediaSyncRemovedFiles{Files: int(v)}, nil
	}
	return nil, errors.UnknownDiscriminant(errors.PhaseProgress, "MediaSyncProgress", fmt.Sprintf("%T", m.Value))
}

// Encode is the inverse of Decode, for engines and tests that emit progress.
func Encode(ev Event) ([]byte, error) {
	if ev.Kind != KindMediaSync {
		return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "Progress", ev.Kind)
	}
	var v wire.MediaSyncValue
	switch p := ev.MediaSync.(type) {
	case MediaSyncDownloadedChanges:
		v = wire.DownloadedChanges(p.Changes)
	case MediaSyncDownloadedFiles:
		v = wire.DownloadedFiles(p.Files)
	case MediaSyncUploaded:
		v = &wire.MediaSyncUploadProgress{Files: uint32(p.Files), Deletions: uint32(p.Deletions)}
	case MediaSyncRemovedFiles:
		v = wire.RemovedFiles(p.Files)
	case nil:
		return nil, errors.TagCount(errors.PhaseEncode, "MediaSyncProgress", 0)
	default:
		return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "MediaSyncProgress", fmt.Sprintf("%T", p))
	}
	return (&wire.Progress{MediaSync: &wire.MediaSyncProgress{Value: v}}).Marshal()
}
