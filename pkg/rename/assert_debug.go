//go:build mjpdebug

package rename

// assertSingleToken panics in debug builds so overlapping items surface immediately.
func assertSingleToken(err error) {
	panic(err)
}
