package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/facette/natsort"
)

// reader yields encoded frames one at a time. io.EOF ends the stream.
type reader interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

func openReader(ctx context.Context, spec Spec) (reader, error) {
	switch spec.Kind {
	case File:
		return newDirReader(spec.Source, spec.Loop, spec.FPS)
	case IPCamera:
		u, err := spec.URL()
		if err != nil {
			return nil, err
		}
		return newSnapshotReader(u, spec.FPS), nil
	case Webcam, RTSP:
		args, err := ffmpegArgs(spec)
		if err != nil {
			return nil, err
		}
		return newFFmpegReader(ctx, spec.FFmpeg, args)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, spec.Kind)
	}
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// dirReader replays still images from a directory in natural order at
// the configured frame rate.
type dirReader struct {
	files []string
	next  int
	loop  bool
	pacer pacer
}

func newDirReader(dir string, loop bool, fps int) (*dirReader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	natsort.Sort(names)
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(dir, n)
	}
	return &dirReader{files: files, loop: loop, pacer: newPacer(fps)}, nil
}

func (r *dirReader) Read(ctx context.Context) ([]byte, error) {
	if err := r.pacer.wait(ctx); err != nil {
		return nil, err
	}
	if r.next >= len(r.files) {
		if !r.loop || len(r.files) == 0 {
			return nil, io.EOF
		}
		r.next = 0
	}
	path := r.files[r.next]
	r.next++
	return os.ReadFile(path)
}

func (r *dirReader) Close() error { return nil }

// pacer spaces reads to at most fps per second.
type pacer struct {
	interval time.Duration
	last     time.Time
}

func newPacer(fps int) pacer {
	interval := time.Second
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return pacer{interval: interval}
}

func (p *pacer) wait(ctx context.Context) error {
	if wait := p.interval - time.Since(p.last); wait > 0 && !p.last.IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	p.last = time.Now()
	return ctx.Err()
}

// snapshotReader polls an HTTP snapshot URL.
type snapshotReader struct {
	url    string
	client *http.Client
	pacer  pacer
}

func newSnapshotReader(u string, fps int) *snapshotReader {
	return &snapshotReader{url: u, client: &http.Client{Timeout: 5 * time.Second}, pacer: newPacer(fps)}
}

func (r *snapshotReader) Read(ctx context.Context) ([]byte, error) {
	if err := r.pacer.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *snapshotReader) Close() error { return nil }

func ffmpegArgs(spec Spec) ([]string, error) {
	var args []string
	switch spec.Kind {
	case Webcam:
		args = append(args, "-f", "v4l2")
		if spec.Width > 0 && spec.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", spec.Width, spec.Height))
		}
		if spec.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(spec.FPS))
		}
		args = append(args, "-i", spec.device())
	case RTSP:
		u, err := spec.URL()
		if err != nil {
			return nil, err
		}
		args = append(args, "-rtsp_transport", "tcp", "-i", u)
		if spec.FPS > 0 {
			args = append(args, "-r", strconv.Itoa(spec.FPS))
		}
	default:
		return nil, fmt.Errorf("%w: %v has no ffmpeg input", ErrUnknownKind, spec.Kind)
	}
	return append(args, "-loglevel", "error", "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"), nil
}

// ffmpegReader runs ffmpeg and splits its MJPEG output into frames.
type ffmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	frames *mjpegSplitter
}

func newFFmpegReader(ctx context.Context, bin string, args []string) (*ffmpegReader, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}
	return &ffmpegReader{cmd: cmd, stdout: stdout, frames: newMJPEGSplitter(stdout)}, nil
}

func (r *ffmpegReader) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.frames.Next()
}

func (r *ffmpegReader) Close() error {
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	err := r.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// mjpegSplitter cuts a concatenated JPEG stream at SOI/EOI markers.
type mjpegSplitter struct {
	r   *bufio.Reader
	buf []byte
}

func newMJPEGSplitter(r io.Reader) *mjpegSplitter {
	return &mjpegSplitter{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete JPEG or io.EOF.
func (s *mjpegSplitter) Next() ([]byte, error) {
	chunk := make([]byte, 32*1024)
	for {
		if start := bytes.Index(s.buf, jpegSOI); start >= 0 {
			if end := bytes.Index(s.buf[start+2:], jpegEOI); end >= 0 {
				stop := start + 2 + end + 2
				frame := make([]byte, stop-start)
				copy(frame, s.buf[start:stop])
				s.buf = s.buf[stop:]
				return frame, nil
			}
			if start > 0 {
				s.buf = s.buf[start:]
			}
		} else if len(s.buf) > 1 {
			// Keep a trailing 0xFF that may begin the next SOI.
			s.buf = s.buf[len(s.buf)-1:]
		}
		n, err := s.r.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				continue
			}
			return nil, err
		}
	}
}
