package output

import (
	"io"

	"github.com/mdp/qrterminal/v3"
	"rsc.io/qr"
)

// CanRenderQR reports whether w is a terminal that can display a QR code.
func CanRenderQR(w io.Writer) bool {
	return isTerminal(w)
}

// RenderQR draws data as a compact QR code on w. On a non-terminal
// writer it draws nothing and returns nil, keeping piped output
// machine-readable. Low error correction is plenty for a short payment
// URL, and half blocks keep the code small on screen.
func RenderQR(w io.Writer, data string) error {
	if !CanRenderQR(w) {
		return nil
	}

	qrterminal.GenerateWithConfig(data, qrterminal.Config{
		Level:          qr.L,
		Writer:         w,
		QuietZone:      1,
		HalfBlocks:     true,
		BlackChar:      qrterminal.BLACK_BLACK,
		WhiteChar:      qrterminal.WHITE_WHITE,
		WhiteBlackChar: qrterminal.WHITE_BLACK,
		BlackWhiteChar: qrterminal.BLACK_WHITE,
	})
	return nil
}
