package render

// Bloom extracts bright pixels into a quarter-resolution buffer, box-blurs
// it a few times and blends the result back additively. The rain theme's
// glow comes from this pass.
const (
	bloomDownsample = 4
	bloomRadius     = 12
	bloomPasses     = 3
	bloomThreshold  = 12
)

// applyBloom runs the full bloom pass over an RGB24 frame in place. buf and
// tmp are caller-owned scratch buffers sized (w/4)*(h/4)*3.
func applyBloom(frame []byte, buf, tmp []uint16, w, h int) {
	dsW := w / bloomDownsample
	dsH := h / bloomDownsample
	if dsW < 2 || dsH < 2 {
		return
	}

	downsampleBright(frame, buf, w, dsW, dsH)
	for p := 0; p < bloomPasses; p++ {
		boxBlurH(buf, tmp, dsW, dsH)
		boxBlurV(tmp, buf, dsW, dsH)
	}
	upscaleAdd(frame, buf, w, h, dsW, dsH)
}

// downsampleBright averages 4x4 blocks of threshold-subtracted channel
// values into the low-res buffer.
func downsampleBright(frame []byte, dst []uint16, w, dsW, dsH int) {
	for dy := 0; dy < dsH; dy++ {
		for dx := 0; dx < dsW; dx++ {
			var sumR, sumG, sumB uint32
			for by := 0; by < bloomDownsample; by++ {
				rowBase := ((dy*bloomDownsample + by) * w) * 3
				for bx := 0; bx < bloomDownsample; bx++ {
					idx := rowBase + (dx*bloomDownsample+bx)*3
					sumR += uint32(brightPart(frame[idx]))
					sumG += uint32(brightPart(frame[idx+1]))
					sumB += uint32(brightPart(frame[idx+2]))
				}
			}
			const n = bloomDownsample * bloomDownsample
			di := (dy*dsW + dx) * 3
			dst[di] = uint16(sumR / n)
			dst[di+1] = uint16(sumG / n)
			dst[di+2] = uint16(sumB / n)
		}
	}
}

func brightPart(v uint8) uint8 {
	if v <= bloomThreshold {
		return 0
	}
	return v - bloomThreshold
}

// boxBlurH blurs horizontally with a sliding window, clamping at the edges.
func boxBlurH(src, dst []uint16, w, h int) {
	d := uint32(2*bloomRadius + 1)
	for y := 0; y < h; y++ {
		row := y * w * 3
		for c := 0; c < 3; c++ {
			// Prime the window with the clamped left edge.
			var sum uint32
			for i := -bloomRadius; i <= bloomRadius; i++ {
				sum += uint32(src[row+clampIdx(i, w)*3+c])
			}
			for x := 0; x < w; x++ {
				dst[row+x*3+c] = uint16(sum / d)
				sum -= uint32(src[row+clampIdx(x-bloomRadius, w)*3+c])
				sum += uint32(src[row+clampIdx(x+bloomRadius+1, w)*3+c])
			}
		}
	}
}

// boxBlurV blurs vertically with a sliding window, clamping at the edges.
func boxBlurV(src, dst []uint16, w, h int) {
	d := uint32(2*bloomRadius + 1)
	for x := 0; x < w; x++ {
		for c := 0; c < 3; c++ {
			col := x*3 + c
			var sum uint32
			for i := -bloomRadius; i <= bloomRadius; i++ {
				sum += uint32(src[clampIdx(i, h)*w*3+col])
			}
			for y := 0; y < h; y++ {
				dst[y*w*3+col] = uint16(sum / d)
				sum -= uint32(src[clampIdx(y-bloomRadius, h)*w*3+col])
				sum += uint32(src[clampIdx(y+bloomRadius+1, h)*w*3+col])
			}
		}
	}
}

func clampIdx(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// upscaleAdd bilinearly scales the blurred buffer back up and adds it onto
// the frame with saturation. Interpolation weights use 8.8 fixed point.
func upscaleAdd(frame []byte, src []uint16, w, h, dsW, dsH int) {
	for y := 0; y < h; y++ {
		fy := (float32(y)+0.5)/bloomDownsample - 0.5
		if fy < 0 {
			fy = 0
		}
		if fy > float32(dsH-1) {
			fy = float32(dsH - 1)
		}
		iy := int(fy)
		if iy > dsH-2 {
			iy = dsH - 2
		}
		wy := uint32((fy - float32(iy)) * 256)

		for x := 0; x < w; x++ {
			fx := (float32(x)+0.5)/bloomDownsample - 0.5
			if fx < 0 {
				fx = 0
			}
			if fx > float32(dsW-1) {
				fx = float32(dsW - 1)
			}
			ix := int(fx)
			if ix > dsW-2 {
				ix = dsW - 2
			}
			wx := uint32((fx - float32(ix)) * 256)

			i00 := (iy*dsW + ix) * 3
			i10 := i00 + 3
			i01 := i00 + dsW*3
			i11 := i01 + 3

			fi := (y*w + x) * 3
			for c := 0; c < 3; c++ {
				top := uint32(src[i00+c])*(256-wx) + uint32(src[i10+c])*wx
				bot := uint32(src[i01+c])*(256-wx) + uint32(src[i11+c])*wx
				bloom := (top*(256-wy) + bot*wy) >> 16

				v := uint32(frame[fi+c]) + bloom
				if v > 255 {
					v = 255
				}
				frame[fi+c] = uint8(v)
			}
		}
	}
}
