//go:build js && wasm
// +build js,wasm

package main

import (
	"errors"
	"fmt"
	"syscall/js"

	"github.com/himanishpuri/songid/internal/audio"
	"github.com/himanishpuri/songid/pkg/signature"
)

// Error codes returned to JavaScript
const (
	ErrorNone = iota
	ErrorInvalidArgs
	ErrorProcessing
	ErrorTooShort
	ErrorSilent
	ErrorEncoding
)

// generateSignature builds a signature URI from Web Audio samples in [-1, 1].
// Returns: {error: number, data: string, peaks: number, durationMs: number}
func generateSignature(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return makeErrorResponse(ErrorInvalidArgs, "Expected 3 arguments: audioArray, sampleRate, channels")
	}

	audioDataJS := args[0]
	sampleRateJS := args[1]
	channelsJS := args[2]

	if audioDataJS.Type() != js.TypeObject {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray must be an Array or Float32Array")
	}
	if sampleRateJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "sampleRate must be a number")
	}
	if channelsJS.Type() != js.TypeNumber {
		return makeErrorResponse(ErrorInvalidArgs, "channels must be a number")
	}

	sampleRate := sampleRateJS.Int()
	channels := channelsJS.Int()

	if sampleRate <= 0 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid sample rate: %d", sampleRate))
	}
	if channels < 1 {
		return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("Invalid channel count: %d", channels))
	}

	length := audioDataJS.Length()
	if length == 0 {
		return makeErrorResponse(ErrorInvalidArgs, "audioArray is empty")
	}

	floats := make([]float64, length)
	for i := 0; i < length; i++ {
		val := audioDataJS.Index(i)
		if val.Type() != js.TypeNumber {
			return makeErrorResponse(ErrorInvalidArgs, fmt.Sprintf("audioArray element %d is not a number", i))
		}
		floats[i] = val.Float()
	}

	mono, err := audio.Resample(audio.ToMono(audio.FromFloat(floats), channels), sampleRate, signature.SampleRate)
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Failed to resample audio: %v", err))
	}
	if audio.IsSilent(mono, audio.SilenceThreshold) {
		return makeErrorResponse(ErrorSilent, "Audio is silent")
	}

	sig, err := signature.MakeSignature(mono)
	if errors.Is(err, signature.ErrInputTooShort) {
		return makeErrorResponse(ErrorTooShort, "Audio is too short, record at least a few seconds")
	}
	if err != nil {
		return makeErrorResponse(ErrorProcessing, fmt.Sprintf("Failed to generate signature: %v", err))
	}

	uri, err := signature.EncodeURI(sig)
	if err != nil {
		return makeErrorResponse(ErrorEncoding, fmt.Sprintf("Failed to encode signature: %v", err))
	}

	result := js.Global().Get("Object").New()
	result.Set("error", ErrorNone)
	result.Set("data", uri)
	result.Set("peaks", sig.PeakCount())
	result.Set("durationMs", sig.SampleMs())
	return result
}

func makeErrorResponse(errorCode int, message string) js.Value {
	result := js.Global().Get("Object").New()
	result.Set("error", errorCode)
	result.Set("data", message)
	return result
}

func main() {
	console := js.Global().Get("console")
	if !console.IsUndefined() {
		console.Call("log", "🔧 songid WASM module initializing...")
	}

	done := make(chan struct{})

	js.Global().Set("generateSignature", js.FuncOf(generateSignature))

	window := js.Global().Get("window")
	if !window.IsUndefined() {
		eventInit := js.Global().Get("Object").New()
		event := js.Global().Get("CustomEvent").New("wasmReady", eventInit)
		window.Call("dispatchEvent", event)
	} else if !console.IsUndefined() {
		console.Call("error", "❌ window object is undefined!")
	}

	if !console.IsUndefined() {
		console.Call("log", "✅ songid WASM module loaded and ready")
	}

	<-done
}
