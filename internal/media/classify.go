// Package media inspects fetched Telegram messages and decides what kind of
// content they carry, how big it is and where it can be downloaded from.
package media

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/diegod088/bot-bens11-sub000/internal/models"
)

const apkMime = "application/vnd.android.package-archive"

// ErrNoMedia is returned when a message carries nothing downloadable.
var ErrNoMedia = errors.New("message has no downloadable media")

// Info describes classified media. Size is zero when undeclared and must be
// read as unknown, not empty.
type Info struct {
	Kind     models.ContentKind
	Size     int64
	MimeType string
	FileName string
}

// Classify inspects message media without any network calls.
func Classify(m tg.MessageMediaClass) Info {
	switch v := m.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := v.Photo.(*tg.Photo)
		if !ok {
			return Info{Kind: models.KindNone}
		}
		_, size := largestPhotoSize(photo)
		return Info{
			Kind:     models.KindPhoto,
			Size:     int64(size),
			MimeType: "image/jpeg",
			FileName: fmt.Sprintf("photo_%d.jpg", photo.ID),
		}

	case *tg.MessageMediaDocument:
		doc, ok := v.Document.(*tg.Document)
		if !ok {
			return Info{Kind: models.KindNone}
		}
		return classifyDocument(doc)

	default:
		return Info{Kind: models.KindNone}
	}
}

func classifyDocument(doc *tg.Document) Info {
	info := Info{
		Kind:     models.KindNone,
		Size:     doc.Size,
		MimeType: doc.MimeType,
	}

	var (
		video bool
		audio *tg.DocumentAttributeAudio
	)
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			info.FileName = a.FileName
		case *tg.DocumentAttributeVideo:
			video = true
		case *tg.DocumentAttributeAudio:
			audio = a
		}
	}

	switch {
	case video:
		info.Kind = models.KindVideo
	case audio != nil && audio.Voice:
		info.Kind = models.KindVoice
	case audio != nil:
		info.Kind = models.KindMusic
	}

	if info.Kind == models.KindNone {
		info.Kind = kindFromMime(doc.MimeType, info.FileName)
	}

	if info.FileName == "" {
		info.FileName = fmt.Sprintf("file_%d%s", doc.ID, extFor(info.Kind, doc.MimeType))
	}
	return info
}

func kindFromMime(mime, fileName string) models.ContentKind {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "video/"):
		return models.KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.KindMusic
	case mime == apkMime:
		return models.KindApk
	case strings.EqualFold(path.Ext(fileName), ".apk"):
		return models.KindApk
	default:
		return models.KindDocument
	}
}

func extFor(kind models.ContentKind, mime string) string {
	switch kind {
	case models.KindVideo:
		return ".mp4"
	case models.KindMusic:
		return ".mp3"
	case models.KindVoice:
		return ".ogg"
	case models.KindApk:
		return ".apk"
	}
	if strings.HasPrefix(mime, "application/pdf") {
		return ".pdf"
	}
	return ""
}

// largestPhotoSize returns the rendition type and byte size of the biggest
// photo rendition.
func largestPhotoSize(photo *tg.Photo) (string, int) {
	var (
		bestType string
		bestSize int
		bestArea int
	)
	for _, s := range photo.Sizes {
		var (
			typ        string
			size, area int
		)
		switch v := s.(type) {
		case *tg.PhotoSize:
			typ, size, area = v.Type, v.Size, v.W*v.H
		case *tg.PhotoSizeProgressive:
			typ, area = v.Type, v.W*v.H
			for _, n := range v.Sizes {
				if n > size {
					size = n
				}
			}
		default:
			continue
		}
		if size > bestSize || (size == bestSize && area > bestArea) {
			bestType, bestSize, bestArea = typ, size, area
		}
	}
	return bestType, bestSize
}
