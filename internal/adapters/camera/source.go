// Package camera produces frames from webcams, IP cameras, RTSP streams
// and directories of still images.
package camera

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind selects how frames are acquired.
type Kind int

const (
	Webcam Kind = iota
	IPCamera
	RTSP
	File
)

var kindNames = map[Kind]string{
	Webcam:   "webcam",
	IPCamera: "ip_camera",
	RTSP:     "rtsp",
	File:     "file",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ErrUnknownKind is returned by ParseKind.
var ErrUnknownKind = errors.New("unknown camera kind")

// ParseKind maps a config value to a Kind.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == norm {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Spec describes one frame source. Which fields matter depends on Kind:
// Webcam uses Source as a device index or path, IPCamera and RTSP use it
// as a URL with optional credentials, File uses it as a directory.
type Spec struct {
	Kind     Kind
	Source   string
	Username string
	Password string
	Width    int
	Height   int
	FPS      int
	// Loop replays a File source from the start when it runs out.
	Loop bool
	// FFmpeg is the binary used for Webcam and RTSP capture.
	FFmpeg string
}

// URL returns Source with credentials injected for network kinds.
func (s Spec) URL() (string, error) {
	if s.Kind != IPCamera && s.Kind != RTSP {
		return s.Source, nil
	}
	u, err := url.Parse(s.Source)
	if err != nil {
		return "", fmt.Errorf("camera url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("camera url %q: scheme and host are required", s.Source)
	}
	if s.Username != "" && u.User == nil {
		u.User = url.UserPassword(s.Username, s.Password)
	}
	return u.String(), nil
}

// Redacted returns Source with any password hidden, for logs.
func (s Spec) Redacted() string {
	full, err := s.URL()
	if err != nil {
		return s.Source
	}
	u, err := url.Parse(full)
	if err != nil || u.User == nil {
		return full
	}
	return u.Redacted()
}

// device maps a webcam index like "0" to its v4l2 path.
func (s Spec) device() string {
	if s.Source == "" {
		return "/dev/video0"
	}
	if strings.HasPrefix(s.Source, "/") {
		return s.Source
	}
	return "/dev/video" + s.Source
}
