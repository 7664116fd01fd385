package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/diegod088/bot-bens11-sub000/internal/media"
)

// Downloader streams message media through the session.
type Downloader struct {
	calls Caller
	dl    *downloader.Downloader
}

// NewDownloader creates a Downloader on top of the session.
func NewDownloader(calls Caller) *Downloader {
	return &Downloader{
		calls: calls,
		dl:    downloader.NewDownloader(),
	}
}

// ErrFileTooLarge stops a download that passed its byte limit.
var ErrFileTooLarge = errors.New("file exceeds download limit")

// cappedWriter fails once more than limit bytes were written. A limit of
// zero or less disables the cap.
type cappedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (c *cappedWriter) Write(p []byte) (int, error) {
	if c.limit > 0 && c.written+int64(len(p)) > c.limit {
		return 0, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, c.limit)
	}
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}

// ToBuffer downloads media into memory, at most limit bytes. Meant for
// photos.
func (d *Downloader) ToBuffer(ctx context.Context, m tg.MessageMediaClass, limit int64) ([]byte, error) {
	loc, err := media.Location(m)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = d.calls.Do(ctx, "download", func(ctx context.Context, api API) error {
		buf.Reset()
		_, err := d.dl.Download(api, loc).Stream(ctx, &cappedWriter{w: &buf, limit: limit})
		return err
	}, LongRunning())
	if err != nil {
		return nil, fmt.Errorf("download to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// ToFile downloads media to path, overwriting partial data from earlier
// attempts, and returns the written size. The download is abandoned as
// soon as it passes limit bytes.
func (d *Downloader) ToFile(ctx context.Context, m tg.MessageMediaClass, path string, limit int64) (int64, error) {
	loc, err := media.Location(m)
	if err != nil {
		return 0, err
	}

	var written int64
	err = d.calls.Do(ctx, "download", func(ctx context.Context, api API) error {
		n, err := streamToFile(path, limit, func(w io.Writer) error {
			_, err := d.dl.Download(api, loc).Stream(ctx, w)
			return err
		})
		written = n
		return err
	}, LongRunning())
	if err != nil {
		return 0, fmt.Errorf("download to file: %w", err)
	}
	return written, nil
}

// streamToFile truncates path and lets stream write into it through the
// byte cap.
func streamToFile(path string, limit int64, stream func(w io.Writer) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	cw := &cappedWriter{w: f, limit: limit}
	err = stream(cw)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return cw.written, err
}
