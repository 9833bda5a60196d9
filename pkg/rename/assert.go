//go:build !mjpdebug

package rename

func assertSingleToken(error) {}
