package posevis

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerDefaultSilent(t *testing.T) {
	l := Logger()
	if l == nil {
		t.Fatal("Logger() returned nil")
	}
	if l.Enabled(nil, slog.LevelError) { //nolint:staticcheck // nil context is fine here
		t.Error("default logger must be disabled at every level")
	}
}

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	Logger().Info("hello", "k", "v")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("log output %q does not contain message", buf.String())
	}

	// nil restores the silent default.
	SetLogger(nil)
	buf.Reset()
	Logger().Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("silent logger wrote %q", buf.String())
	}
}

func TestRenderFaultLogged(t *testing.T) {
	defer SetLogger(nil)
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	r := testRenderer(t, NewSoftwareDevice(), COCO18, true)
	if sel, _ := r.Render(&FrameBuffer{}, Keypoints{}, 2); sel != -1 {
		t.Fatal("empty output accepted")
	}
	if !strings.Contains(buf.String(), "render failed") {
		t.Errorf("fault was not logged: %q", buf.String())
	}
}
