package wire

import (
	"github.com/wippyai/anki-bridge/errors"
)

// Progress is an out-of-band status notification sent while a command runs.
//
// Wire layout (oneof value):
//
//	1: MediaSyncProgress media_sync
type Progress struct {
	MediaSync *MediaSyncProgress
}

func (m *Progress) Marshal() ([]byte, error) {
	if m.MediaSync == nil {
		return nil, errors.TagCount(errors.PhaseEncode, "Progress", 0)
	}
	return appendMessage(nil, 1, m.MediaSync)
}

func (m *Progress) Unmarshal(b []byte) error {
	u := unionReader{msg: "Progress"}
	*m = Progress{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		if f.num != 1 {
			return u.unknown(f)
		}
		ms, err := decodeEmbedded(u.msg, f, &MediaSyncProgress{})
		if err != nil {
			return err
		}
		m.MediaSync = ms
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}

// MediaSyncProgress reports one step of a media sync.
//
// Wire layout (oneof value):
//
//	1: uint32                  downloaded_changes
//	2: uint32                  downloaded_files
//	3: MediaSyncUploadProgress uploaded
//	4: uint32                  removed_files
//
// MediaSyncUploadProgress is {1: uint32 files, 2: uint32 deletions}.
type MediaSyncProgress struct {
	Value MediaSyncValue
}

// MediaSyncValue is a variant of MediaSyncProgress.
type MediaSyncValue interface {
	isMediaSync()
}

// DownloadedChanges counts media changes fetched from the server.
type DownloadedChanges uint32

// DownloadedFiles counts media files fetched from the server.
type DownloadedFiles uint32

// RemovedFiles counts local files removed on server instruction.
type RemovedFiles uint32

// MediaSyncUploadProgress counts uploaded files and deletions.
type MediaSyncUploadProgress struct {
	Files     uint32
	Deletions uint32
}

func (DownloadedChanges) isMediaSync()        {}
func (DownloadedFiles) isMediaSync()          {}
func (RemovedFiles) isMediaSync()             {}
func (*MediaSyncUploadProgress) isMediaSync() {}

func (m *MediaSyncUploadProgress) Marshal() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(m.Files))
	b = appendVarint(b, 2, uint64(m.Deletions))
	return b, nil
}

func (m *MediaSyncUploadProgress) Unmarshal(b []byte) error {
	const msg = "MediaSyncUploadProgress"
	*m = MediaSyncUploadProgress{}
	return readFields(msg, b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.Files, err = f.asUint32(msg)
		case 2:
			m.Deletions, err = f.asUint32(msg)
		}
		return err
	})
}

func (m *MediaSyncProgress) Marshal() ([]byte, error) {
	switch v := m.Value.(type) {
	case DownloadedChanges:
		return appendVarintAlways(nil, 1, uint64(v)), nil
	case DownloadedFiles:
		return appendVarintAlways(nil, 2, uint64(v)), nil
	case *MediaSyncUploadProgress:
		return appendMessage(nil, 3, v)
	case RemovedFiles:
		return appendVarintAlways(nil, 4, uint64(v)), nil
	case nil:
		return nil, errors.TagCount(errors.PhaseEncode, "MediaSyncProgress", 0)
	}
	return nil, errors.UnknownDiscriminant(errors.PhaseEncode, "MediaSyncProgress", m.Value)
}

func (m *MediaSyncProgress) Unmarshal(b []byte) error {
	u := unionReader{msg: "MediaSyncProgress"}
	*m = MediaSyncProgress{}
	err := readFields(u.msg, b, func(f field) error {
		u.seen()
		switch f.num {
		case 1, 2, 4:
			n, err := f.asUint32(u.msg)
			if err != nil {
				return err
			}
			switch f.num {
			case 1:
				m.Value = DownloadedChanges(n)
			case 2:
				m.Value = DownloadedFiles(n)
			default:
				m.Value = RemovedFiles(n)
			}
		case 3:
			up, err := decodeEmbedded(u.msg, f, &MediaSyncUploadProgress{})
			if err != nil {
				return err
			}
			m.Value = up
		default:
			return u.unknown(f)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return u.done()
}
