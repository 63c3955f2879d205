// Package devices discovers V4L2 hardware: which /dev/videoN nodes are real
// cameras, which resolutions and frame rates they offer, and which nodes
// are loopback sinks. Everything goes through QUERYCAP/ENUM ioctls; no
// udev, no cgo.
package devices

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/smazurov/asciinode/internal/settings"
)

// maxScanIndex bounds the /dev/videoN probe loop.
const maxScanIndex = 64

// CameraInfo describes one detected capture device.
type CameraInfo struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Name  string `json:"name"`
}

// DevicePath returns the /dev path for a camera index.
func DevicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

func queryCap(index int) (*v4l2Capability, bool) {
	fd, err := unix.Open(DevicePath(index), unix.O_RDONLY, 0)
	if err != nil {
		return nil, false
	}
	defer unix.Close(fd)

	var cap v4l2Capability
	if err := ioctl(fd, vidiocQueryCap, unsafe.Pointer(&cap)); err != nil {
		return nil, false
	}
	return &cap, true
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func effectiveCaps(cap *v4l2Capability) uint32 {
	if cap.Capabilities&capDeviceCaps != 0 {
		return cap.DeviceCaps
	}
	return cap.Capabilities
}

func isLoopback(cap *v4l2Capability) bool {
	return strings.Contains(cstr(cap.Driver[:]), "v4l2 loopback") ||
		strings.HasPrefix(cstr(cap.BusInfo[:]), "platform:v4l2loopback-")
}

func isCapture(cap *v4l2Capability) bool {
	caps := effectiveCaps(cap)
	return caps&capVideoCapture != 0 || caps&capVideoCaptureMPlane != 0
}

// DetectCamera finds the first real capture camera, skipping loopback nodes
// and the configured output device.
func DetectCamera(outputDevice string) (int, bool) {
	for index := 0; index < maxScanIndex; index++ {
		if DevicePath(index) == outputDevice {
			continue
		}
		cap, ok := queryCap(index)
		if !ok || isLoopback(cap) || !isCapture(cap) {
			continue
		}
		return index, true
	}
	return 0, false
}

// DeviceName returns the human-readable card name for a video device.
func DeviceName(index int) (string, bool) {
	cap, ok := queryCap(index)
	if !ok {
		return "", false
	}
	return cstr(cap.Card[:]), true
}

// IsLoopbackDevice reports whether the node at path is a v4l2loopback
// device. Unknown or unreadable nodes report false.
func IsLoopbackDevice(path string) bool {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	var cap v4l2Capability
	if err := ioctl(fd, vidiocQueryCap, unsafe.Pointer(&cap)); err != nil {
		return false
	}
	return isLoopback(&cap)
}

// ListCameras returns all real capture cameras, skipping loopback nodes and
// the configured output device.
func ListCameras(outputDevice string) []CameraInfo {
	var cameras []CameraInfo
	for index := 0; index < maxScanIndex; index++ {
		path := DevicePath(index)
		if path == outputDevice {
			continue
		}
		cap, ok := queryCap(index)
		if !ok || isLoopback(cap) || !isCapture(cap) {
			continue
		}
		cameras = append(cameras, CameraInfo{Index: index, Path: path, Name: cstr(cap.Card[:])})
	}
	return cameras
}

func findMJPEG(fd int) (uint32, bool) {
	for i := uint32(0); ; i++ {
		desc := v4l2FmtDesc{Index: i, Type: bufTypeVideoCapture}
		if err := ioctl(fd, vidiocEnumFmt, unsafe.Pointer(&desc)); err != nil {
			return 0, false
		}
		if desc.PixelFormat == mjpegFourCC {
			return desc.PixelFormat, true
		}
	}
}

// SupportsMJPEG reports whether the camera offers MJPEG capture.
func SupportsMJPEG(index int) bool {
	fd, err := unix.Open(DevicePath(index), unix.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	_, ok := findMJPEG(fd)
	return ok
}

// ListResolutions enumerates discrete MJPEG frame sizes for a camera,
// sorted by pixel count descending. Empty on any error.
func ListResolutions(index int) []settings.Resolution {
	fd, err := unix.Open(DevicePath(index), unix.O_RDWR, 0)
	if err != nil {
		return nil
	}
	defer unix.Close(fd)

	pixfmt, ok := findMJPEG(fd)
	if !ok {
		return nil
	}

	var out []settings.Resolution
	for i := uint32(0); ; i++ {
		frm := v4l2FrmSizeEnum{Index: i, PixelFormat: pixfmt}
		if err := ioctl(fd, vidiocEnumFrameSizes, unsafe.Pointer(&frm)); err != nil {
			break
		}
		if frm.Type == frmSizeTypeDiscrete {
			out = append(out, settings.Resolution{Width: frm.Width, Height: frm.Height})
		}
	}

	sort.Slice(out, func(a, b int) bool {
		pa := uint64(out[a].Width) * uint64(out[a].Height)
		pb := uint64(out[b].Width) * uint64(out[b].Height)
		return pa > pb
	})
	return dedup(out)
}

func dedup(in []settings.Resolution) []settings.Resolution {
	out := in[:0]
	for i, r := range in {
		if i == 0 || r != in[i-1] {
			out = append(out, r)
		}
	}
	return out
}

// MaxFPS returns the highest discrete MJPEG frame rate the camera reports
// for the resolution.
func MaxFPS(index int, res settings.Resolution) (int, bool) {
	fd, err := unix.Open(DevicePath(index), unix.O_RDWR, 0)
	if err != nil {
		return 0, false
	}
	defer unix.Close(fd)

	pixfmt, ok := findMJPEG(fd)
	if !ok {
		return 0, false
	}

	max := 0
	for i := uint32(0); ; i++ {
		ival := v4l2FrmIvalEnum{
			Index:       i,
			PixelFormat: pixfmt,
			Width:       res.Width,
			Height:      res.Height,
		}
		if err := ioctl(fd, vidiocEnumIntervals, unsafe.Pointer(&ival)); err != nil {
			break
		}
		if ival.Type == frmIvalTypeDiscrete && ival.Numerator > 0 {
			if fps := int(ival.Denominator / ival.Numerator); fps > max {
				max = fps
			}
		}
	}
	return max, max > 0
}
