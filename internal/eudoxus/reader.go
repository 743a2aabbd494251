package eudoxus

import (
	"context"
	"errors"
	"io"
)

const DefaultChunkSize = 32 << 10

// ScanReader streams r through a and returns the matches selected by
// policy. ctx is checked between chunks; a cancelled scan returns the
// matches found so far together with the context error.
func ScanReader(ctx context.Context, a *Automaton, r io.Reader, policy Policy, chunkSize int) ([]Match, error) {
	var out []Match
	err := ScanReaderFunc(ctx, a, r, policy, chunkSize, func(m Match) error {
		out = append(out, m)
		return nil
	})
	return out, err
}

// ScanReaderFunc is ScanReader with matches delivered to fn as they are
// produced. An error from fn ends the scan and is returned.
func ScanReaderFunc(ctx context.Context, a *Automaton, r io.Reader, policy Policy, chunkSize int, fn func(Match) error) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	emit := func(matches []Match) error {
		for _, m := range matches {
			if err := fn(m); err != nil {
				return err
			}
		}
		return nil
	}

	stream := NewStream(a, policy)
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if emitErr := emit(stream.Feed(buf[:n])); emitErr != nil {
				return emitErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	return emit(stream.Finalize())
}
