package media

import (
	"github.com/gotd/td/tg"
)

// Location returns the file location to download the full-size media from.
func Location(m tg.MessageMediaClass) (tg.InputFileLocationClass, error) {
	switch v := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return nil, ErrNoMedia
		}
		thumb, _ := largestPhotoSize(photo)
		if thumb == "" {
			return nil, ErrNoMedia
		}
		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     thumb,
		}, nil

	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return nil, ErrNoMedia
		}
		return &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}, nil

	default:
		return nil, ErrNoMedia
	}
}
