// Package api defines the Tokenizer API.
// It's kept separate from the implementations so that trainers, file formats and command line tools can
// share the same types without importing each other.
package api

// TokenID identifies a token in a byte-level vocabulary: ids 0-255 are the raw bytes, and every id from
// 256 on is a learned merge, numbered in the order it was learned.
type TokenID = uint32

// NumByteTokens is the number of base tokens, one per possible byte value.
const NumByteTokens = 256

// TokenSpan represents the byte span of a token in the original text.
// Start and End are byte offsets (not rune offsets), suitable for slicing
// Go strings directly: originalText[span.Start:span.End].
type TokenSpan struct {
	Start int // start byte position (inclusive)
	End   int // end byte position (exclusive)
}

// EncodingResult contains tokens with their spans in the original text.
type EncodingResult struct {
	IDs   []TokenID   // token IDs
	Spans []TokenSpan // byte spans for each token (use originalText[span.Start:span.End] to extract)
}

// Tokenizer interface allows one to convert text to "tokens" (integer ids) and back.
//
// Decode works on bytes, not strings: a single token may hold only part of a multibyte UTF-8 character,
// so only the full concatenation is guaranteed to be valid text.
type Tokenizer interface {
	Encode(text string) []TokenID
	Decode(ids []TokenID) ([]byte, error)
}

// TokenizerWithSpans extends Tokenizer with span tracking capability.
// This is useful when token predictions have to be mapped back to byte positions in the original text.
type TokenizerWithSpans interface {
	Tokenizer
	// EncodeWithSpans returns tokens along with their byte spans in the original text.
	EncodeWithSpans(text string) EncodingResult
}
