// Package capture acquires camera frames and feeds them into the pipeline
// as RGB24 buffers. The webcam source wraps go4vl; the stage loop paces
// acquisition to the target frame rate and stays responsive to reopen and
// rate commands.
package capture

// Frame is one RGB24 video frame. Ownership moves with the value: once a
// frame is sent downstream the sender must not touch RGB again.
type Frame struct {
	RGB    []byte
	Width  uint32
	Height uint32
	Seq    uint64
}
