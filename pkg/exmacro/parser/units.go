package parser

import "strconv"

// EMUPerPixel is the number of EMUs (English Metric Units) per pixel at 96 DPI.
// 1 inch = 914400 EMU, 1 inch = 96 pixels at 96 DPI
// Therefore: 914400 / 96 = 9525 EMU per pixel
const EMUPerPixel = 9525

// EMUToPixels converts EMU (English Metric Units) to pixels at 96 DPI.
func EMUToPixels(emu int64) int {
	return int(emu / EMUPerPixel)
}

// parseEMU parses an EMU coordinate attribute and converts it to pixels.
func parseEMU(value string) (int, bool) {
	emu, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return EMUToPixels(emu), true
}
