//go:build llama

package engine

// cgo link directives for the in-process llama adapter.
// - rpath $ORIGIN lets the loader find libllama.so and libggml*.so next to the
//   built binary (./bin).
// - -L${SRCDIR}/../../bin lets the linker find libllama.so at link time.
/*
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/../../bin -lllama
*/
import "C"
