package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"github.com/smazurov/asciinode/internal/devices"
	"github.com/smazurov/asciinode/internal/logging"
	"github.com/smazurov/asciinode/internal/settings"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080

	openAttempts = 3
)

// Backoff between open attempts; UVC cameras need a moment to release
// their handle after a close.
var openBackoff = []time.Duration{200 * time.Millisecond, 500 * time.Millisecond}

// Webcam is a go4vl-backed camera source. MJPEG streams are decoded to
// RGB24; native RGB24 passes through.
type Webcam struct {
	dev    *device.Device
	cancel context.CancelFunc
	frames <-chan []byte

	path   string
	width  uint32
	height uint32
	mjpeg  bool
	seq    uint64
}

// OpenWebcam opens the camera at index, negotiating MJPEG when the device
// offers it and RGB24 otherwise. A nil resolution requests the default
// 1920x1080; the device may negotiate down. Retries a few times because
// cameras briefly refuse to reopen after release.
func OpenWebcam(index int, res *settings.Resolution, fps int) (*Webcam, error) {
	path := devices.DevicePath(index)
	log := logging.GetLogger("capture")

	width, height := uint32(defaultWidth), uint32(defaultHeight)
	if res != nil {
		width, height = res.Width, res.Height
	}

	pixfmt := v4l2.PixelFmtRGB24
	mjpeg := false
	if devices.SupportsMJPEG(index) {
		pixfmt = v4l2.PixelFmtMJPEG
		mjpeg = true
	}

	var dev *device.Device
	var err error
	for attempt := 0; attempt < openAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(openBackoff[attempt-1])
			log.Info("retrying camera open", "device", path, "attempt", attempt+1)
		}
		dev, err = device.Open(
			path,
			device.WithPixFormat(v4l2.PixFormat{
				Width:       width,
				Height:      height,
				PixelFormat: pixfmt,
				Field:       v4l2.FieldNone,
			}),
			device.WithFPS(uint32(fps)),
		)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCameraUnavailable, path, err)
	}

	negotiated, err := dev.GetPixFormat()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("%w: query format on %s: %v", ErrCameraUnavailable, path, err)
	}
	switch negotiated.PixelFormat {
	case v4l2.PixelFmtMJPEG:
		mjpeg = true
	case v4l2.PixelFmtRGB24:
		mjpeg = false
	default:
		dev.Close()
		return nil, fmt.Errorf("%w: %s negotiated fourcc %#x", ErrModeUnsupported, path, negotiated.PixelFormat)
	}
	if res != nil && (negotiated.Width != res.Width || negotiated.Height != res.Height) {
		log.Warn("camera negotiated different resolution",
			"device", path,
			"requested", res.String(),
			"got", fmt.Sprintf("%dx%d", negotiated.Width, negotiated.Height))
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(streamCtx); err != nil {
		cancel()
		dev.Close()
		return nil, fmt.Errorf("%w: start stream on %s: %v", ErrCameraUnavailable, path, err)
	}

	return &Webcam{
		dev:    dev,
		cancel: cancel,
		frames: dev.GetOutput(),
		path:   path,
		width:  negotiated.Width,
		height: negotiated.Height,
		mjpeg:  mjpeg,
	}, nil
}

// NextFrame blocks until the camera delivers a frame or ctx is done.
func (w *Webcam) NextFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case buf, ok := <-w.frames:
		if !ok {
			return Frame{}, fmt.Errorf("%w: %s stream closed", ErrCameraUnavailable, w.path)
		}
		rgb, err := w.toRGB(buf)
		if err != nil {
			return Frame{}, err
		}
		w.seq++
		return Frame{RGB: rgb, Width: w.width, Height: w.height, Seq: w.seq}, nil
	}
}

func (w *Webcam) toRGB(buf []byte) ([]byte, error) {
	if !w.mjpeg {
		// go4vl reuses its buffers; the pipeline owns frames, so copy out.
		rgb := make([]byte, len(buf))
		copy(rgb, buf)
		return rgb, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode mjpeg frame: %w", err)
	}
	return imageToRGB24(img, int(w.width), int(w.height)), nil
}

// imageToRGB24 flattens a decoded image into a w*h*3 buffer. Undersized
// decodes leave the remainder black rather than erroring out.
func imageToRGB24(img image.Image, w, h int) []byte {
	rgb := make([]byte, w*h*3)
	b := img.Bounds()
	maxY := b.Dy()
	if maxY > h {
		maxY = h
	}
	maxX := b.Dx()
	if maxX > w {
		maxX = w
	}

	if yc, ok := img.(*image.YCbCr); ok {
		for y := 0; y < maxY; y++ {
			for x := 0; x < maxX; x++ {
				c := yc.YCbCrAt(b.Min.X+x, b.Min.Y+y)
				r, g, bb := ycbcrToRGB(c.Y, c.Cb, c.Cr)
				idx := (y*w + x) * 3
				rgb[idx] = r
				rgb[idx+1] = g
				rgb[idx+2] = bb
			}
		}
		return rgb
	}

	for y := 0; y < maxY; y++ {
		for x := 0; x < maxX; x++ {
			r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := (y*w + x) * 3
			rgb[idx] = uint8(r >> 8)
			rgb[idx+1] = uint8(g >> 8)
			rgb[idx+2] = uint8(bb >> 8)
		}
	}
	return rgb
}

// ycbcrToRGB is the JFIF full-range conversion, fixed point.
func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy := int32(y) << 16
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r := (yy + 91881*cr1) >> 16
	g := (yy - 22554*cb1 - 46802*cr1) >> 16
	b := (yy + 116130*cb1) >> 16

	return clamp8(r), clamp8(g), clamp8(b)
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Resolution returns the negotiated capture resolution.
func (w *Webcam) Resolution() settings.Resolution {
	return settings.Resolution{Width: w.width, Height: w.height}
}

// Path returns the device path.
func (w *Webcam) Path() string {
	return w.path
}

// Close stops streaming and releases the device handle.
func (w *Webcam) Close() error {
	w.cancel()
	return w.dev.Close()
}
