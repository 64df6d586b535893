//go:build js && wasm

// Command wasm exposes the fingerprint encoder and comparator to JavaScript:
//
//	generate_geometric_hash(Float64Array | Float32Array | number[] | null) -> string
//	get_similarity(string, string) -> number
//
// Build with GOOS=js GOARCH=wasm.
package main

import (
	"math"
	"syscall/js"

	"github.com/andresmejia3/ash/internal/ash"
)

func main() {
	js.Global().Set("generate_geometric_hash", js.FuncOf(generateGeometricHash))
	js.Global().Set("get_similarity", js.FuncOf(getSimilarity))

	// Keep the exports alive for the lifetime of the page
	select {}
}

func generateGeometricHash(_ js.Value, args []js.Value) any {
	if len(args) == 0 {
		return ash.SentinelVoid
	}
	return ash.GenerateGeometricHash(toBuffer(args[0]))
}

func getSimilarity(_ js.Value, args []js.Value) any {
	if len(args) < 2 || args[0].Type() != js.TypeString || args[1].Type() != js.TypeString {
		return 0
	}
	return float64(ash.GetSimilarity(args[0].String(), args[1].String()))
}

// toBuffer copies a JS array-like of numbers. null and undefined map to a nil
// buffer so the encoder answers VOID.
func toBuffer(v js.Value) []float64 {
	if v.IsNull() || v.IsUndefined() || v.Type() != js.TypeObject {
		return nil
	}
	length := v.Get("length")
	if length.Type() != js.TypeNumber {
		return nil
	}

	buf := make([]float64, length.Int())
	for i := range buf {
		el := v.Index(i)
		if el.Type() != js.TypeNumber {
			buf[i] = math.NaN()
			continue
		}
		buf[i] = el.Float()
	}
	return buf
}
