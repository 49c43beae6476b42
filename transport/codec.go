package transport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame so a corrupt length prefix can never
// make the reader attempt an unbounded allocation.
const maxFrameSize = 16 * 1024 * 1024

// writeFrame seals and writes one envelope as a 4-byte big-endian length
// prefix followed by its (optionally encrypted) JSON body.
func writeFrame(w io.Writer, env Envelope, enc Encryptor) error {
	plaintext, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("transport: marshal envelope: %w", err)
	}
	body, err := enc.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("transport: encrypt envelope: %w", err)
	}
	if len(body) > maxFrameSize {
		return fmt.Errorf("transport: frame too large (%d bytes)", len(body))
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("transport: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame, opens it, and decodes the
// envelope. A short read on the length prefix or body never desynchronizes
// the stream since io.ReadFull consumes exactly the declared length.
func readFrame(r io.Reader, enc Encryptor) (Envelope, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return Envelope{}, err
	}
	size := binary.BigEndian.Uint32(header)
	if size > maxFrameSize {
		return Envelope{}, fmt.Errorf("transport: frame declares %d bytes, exceeds max", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Envelope{}, fmt.Errorf("transport: read frame body: %w", err)
	}
	plaintext, err := enc.Decrypt(body)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return Envelope{}, fmt.Errorf("transport: unmarshal envelope: %w", err)
	}
	return env, nil
}
