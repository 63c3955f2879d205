package output

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// v4l2_pix_format and v4l2_format from videodev2.h. The format struct is a
// 4-byte type tag plus a 200-byte union; the size is baked into the ioctl
// request code.

type v4l2PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
} // 48 bytes

type v4l2Format struct {
	Type uint32
	_    uint32 // union is 8-byte aligned
	Pix  v4l2PixFormat
	_    [152]byte // rest of the union
} // 208 bytes

// ioctl request encoding, as in linux/ioctl.h.
func ioRW(typ byte, nr, size uintptr) uintptr {
	const iocWrite, iocRead = 1, 2
	return (iocRead|iocWrite)<<30 | size<<16 | uintptr(typ)<<8 | nr
}

var (
	vidiocGetFmt = ioRW('V', 4, unsafe.Sizeof(v4l2Format{}))
	vidiocSetFmt = ioRW('V', 5, unsafe.Sizeof(v4l2Format{}))
)

const (
	bufTypeVideoOutput = 2
	fieldNone          = 1
)

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var rgb24FourCC = fourcc('R', 'G', 'B', '3')

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Loopback drives a v4l2loopback output node.
type Loopback struct {
	file *os.File
	path string
}

// OpenLoopback opens the loopback node for writing. Missing nodes,
// permission problems and busy devices map to the package sentinels.
func OpenLoopback(path string) (*Loopback, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, path, err)
	}
	return &Loopback{file: f, path: path}, nil
}

// Negotiate sets RGB24 at the given geometry via VIDIOC_S_FMT and reads
// back what the device accepted. EBUSY means another producer holds the
// format.
func (l *Loopback) Negotiate(width, height uint32) (Format, error) {
	fmtReq := v4l2Format{Type: bufTypeVideoOutput}
	fmtReq.Pix = v4l2PixFormat{
		Width:       width,
		Height:      height,
		PixelFormat: rgb24FourCC,
		Field:       fieldNone,
		SizeImage:   width * height * 3,
	}

	fd := int(l.file.Fd())
	if err := ioctl(fd, vidiocSetFmt, unsafe.Pointer(&fmtReq)); err != nil {
		if err == unix.EBUSY {
			return Format{}, fmt.Errorf("%w: %s", ErrDeviceBusy, l.path)
		}
		return Format{}, fmt.Errorf("%w: set format on %s: %v", ErrDeviceUnavailable, l.path, err)
	}

	// Read back: the driver may adjust dims or pad rows.
	readBack := v4l2Format{Type: bufTypeVideoOutput}
	if err := ioctl(fd, vidiocGetFmt, unsafe.Pointer(&readBack)); err == nil {
		fmtReq = readBack
	}

	frameSize := int(fmtReq.Pix.SizeImage)
	if min := int(fmtReq.Pix.Width) * int(fmtReq.Pix.Height) * 3; frameSize < min {
		frameSize = min
	}
	return Format{
		Width:     fmtReq.Pix.Width,
		Height:    fmtReq.Pix.Height,
		FrameSize: frameSize,
	}, nil
}

// Write publishes one frame, retrying partial writes and EINTR.
func (l *Loopback) Write(frame []byte) error {
	for len(frame) > 0 {
		n, err := l.file.Write(frame)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("%w: write to %s: %v", ErrDeviceUnavailable, l.path, err)
		}
		frame = frame[n:]
	}
	return nil
}

// Path returns the device path.
func (l *Loopback) Path() string {
	return l.path
}

// Close releases the device handle.
func (l *Loopback) Close() error {
	return l.file.Close()
}
