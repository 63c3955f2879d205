package devices

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding, as in linux/ioctl.h.
const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func ioR(typ byte, nr, size uintptr) uintptr {
	return ioc(iocRead, uintptr(typ), nr, size)
}

func ioRW(typ byte, nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, uintptr(typ), nr, size)
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// Capability and a few enum structs from videodev2.h. Sizes are part of the
// ioctl request code, so the layouts must match the kernel exactly.

type v4l2Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
} // 104 bytes

type v4l2FmtDesc struct {
	Index       uint32
	Type        uint32
	Flags       uint32
	Description [32]byte
	PixelFormat uint32
	MbusCode    uint32
	Reserved    [3]uint32
} // 64 bytes

type v4l2FrmSizeEnum struct {
	Index       uint32
	PixelFormat uint32
	Type        uint32
	// discrete branch of the union (Type == 1)
	Width    uint32
	Height   uint32
	_        [16]byte
	Reserved [2]uint32
} // 44 bytes

type v4l2FrmIvalEnum struct {
	Index       uint32
	PixelFormat uint32
	Width       uint32
	Height      uint32
	Type        uint32
	// discrete branch of the union (Type == 1)
	Numerator   uint32
	Denominator uint32
	_           [16]byte
	Reserved    [2]uint32
} // 52 bytes

var (
	vidiocQueryCap       = ioR('V', 0, unsafe.Sizeof(v4l2Capability{}))
	vidiocEnumFmt        = ioRW('V', 2, unsafe.Sizeof(v4l2FmtDesc{}))
	vidiocEnumFrameSizes = ioRW('V', 74, unsafe.Sizeof(v4l2FrmSizeEnum{}))
	vidiocEnumIntervals  = ioRW('V', 75, unsafe.Sizeof(v4l2FrmIvalEnum{}))
)

const (
	capVideoCapture       = 0x00000001
	capVideoCaptureMPlane = 0x00001000
	capDeviceCaps         = 0x80000000

	bufTypeVideoCapture = 1

	frmSizeTypeDiscrete = 1
	frmIvalTypeDiscrete = 1
)

func fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var mjpegFourCC = fourcc('M', 'J', 'P', 'G')
