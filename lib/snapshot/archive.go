// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/evaluator/lib/codec"
	"github.com/bureau-foundation/evaluator/lib/sealed"
	"github.com/bureau-foundation/evaluator/lib/secret"
)

// An archive is a snapshot written to a file when a run ends so it can
// be inspected afterwards. It is an export, not a checkpoint: nothing
// reads an archive back into a running evaluator.
//
// Layout, as a CBOR sequence:
//
//	ArchiveHeader            (CBOR map)
//	payload                  (CBOR byte string: the CBOR-encoded Wire, compressed)

// archiveFormat identifies snapshot archives in the header.
const archiveFormat = "ensemble-evaluator.snapshot"

// archiveVersion is bumped whenever the layout changes incompatibly.
const archiveVersion = 1

// Compression selects the payload compression of an archive.
type Compression uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone Compression = 0

	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 1

	// CompressionZstd uses zstd at the default level. Snapshots are
	// repetitive text-like structures, so this is the usual choice.
	CompressionZstd Compression = 2
)

// String returns the configuration name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// ArchiveHeader describes an archive's payload.
type ArchiveHeader struct {
	Format      string      `cbor:"format"`
	Version     int         `cbor:"version"`
	EvaluatorID string      `cbor:"evaluator_id"`
	WrittenAt   time.Time   `cbor:"written_at"`
	EventIndex  int64       `cbor:"event_index"`
	Compression Compression `cbor:"compression"`
	Size        int         `cbor:"size"`
	Digest      Digest      `cbor:"digest"`
}

// ArchiveInfo is what the writer knows about the run beyond the
// snapshot itself.
type ArchiveInfo struct {
	EvaluatorID string
	WrittenAt   time.Time
	EventIndex  int64
}

var errIncompressible = errors.New("data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// WriteArchive encodes the snapshot to w. If the requested compression
// does not shrink the payload, the payload is stored uncompressed and
// the header says so.
func WriteArchive(w io.Writer, snapshot *Snapshot, info ArchiveInfo, compression Compression) (ArchiveHeader, error) {
	digest, err := snapshot.Digest()
	if err != nil {
		return ArchiveHeader{}, err
	}
	raw, err := codec.Marshal(snapshot.Wire())
	if err != nil {
		return ArchiveHeader{}, fmt.Errorf("encoding snapshot: %w", err)
	}

	payload, err := compress(raw, compression)
	if errors.Is(err, errIncompressible) {
		payload, compression = raw, CompressionNone
	} else if err != nil {
		return ArchiveHeader{}, err
	}

	header := ArchiveHeader{
		Format:      archiveFormat,
		Version:     archiveVersion,
		EvaluatorID: info.EvaluatorID,
		WrittenAt:   info.WrittenAt.UTC(),
		EventIndex:  info.EventIndex,
		Compression: compression,
		Size:        len(raw),
		Digest:      digest,
	}

	encoder := codec.NewEncoder(w)
	if err := encoder.Encode(header); err != nil {
		return ArchiveHeader{}, fmt.Errorf("writing archive header: %w", err)
	}
	if err := encoder.Encode(payload); err != nil {
		return ArchiveHeader{}, fmt.Errorf("writing archive payload: %w", err)
	}
	return header, nil
}

// ReadArchive decodes an archive and verifies its digest.
func ReadArchive(r io.Reader) (ArchiveHeader, *Snapshot, error) {
	decoder := codec.NewDecoder(r)

	var header ArchiveHeader
	if err := decoder.Decode(&header); err != nil {
		return ArchiveHeader{}, nil, fmt.Errorf("reading archive header: %w", err)
	}
	if header.Format != archiveFormat {
		return ArchiveHeader{}, nil, fmt.Errorf("not a snapshot archive (format %q)", header.Format)
	}
	if header.Version != archiveVersion {
		return ArchiveHeader{}, nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}

	var payload []byte
	if err := decoder.Decode(&payload); err != nil {
		return ArchiveHeader{}, nil, fmt.Errorf("reading archive payload: %w", err)
	}
	raw, err := decompress(payload, header.Compression, header.Size)
	if err != nil {
		return ArchiveHeader{}, nil, err
	}

	var wire Wire
	if err := codec.Unmarshal(raw, &wire); err != nil {
		return ArchiveHeader{}, nil, fmt.Errorf("decoding archived snapshot: %w", err)
	}
	snapshot, err := FromWire(&wire)
	if err != nil {
		return ArchiveHeader{}, nil, err
	}

	digest, err := snapshot.Digest()
	if err != nil {
		return ArchiveHeader{}, nil, err
	}
	if digest != header.Digest {
		return ArchiveHeader{}, nil, fmt.Errorf("archive digest mismatch: header %s, content %s", header.Digest, digest)
	}
	return header, snapshot, nil
}

// ErrSealed is returned by ReadArchiveFile for an archive encrypted to
// age recipients. Use ReadSealedArchiveFile with a matching identity.
var ErrSealed = errors.New("archive is sealed")

// WriteArchiveFile writes the archive to path via a temporary file and
// a rename, so a reader never sees a half-written archive. With
// recipients, the whole archive is sealed to them.
func WriteArchiveFile(path string, snapshot *Snapshot, info ArchiveInfo, compression Compression, recipients ...string) (ArchiveHeader, error) {
	var buffer bytes.Buffer
	var destination io.Writer = &buffer
	var sealer io.WriteCloser
	if len(recipients) > 0 {
		var err error
		sealer, err = sealed.Seal(&buffer, recipients...)
		if err != nil {
			return ArchiveHeader{}, err
		}
		destination = sealer
	}

	header, err := WriteArchive(destination, snapshot, info, compression)
	if err != nil {
		return ArchiveHeader{}, err
	}
	if sealer != nil {
		if err := sealer.Close(); err != nil {
			return ArchiveHeader{}, fmt.Errorf("sealing archive: %w", err)
		}
	}

	temporary := path + ".tmp"
	mode := os.FileMode(0o644)
	if sealer != nil {
		mode = 0o600
	}
	if err := os.WriteFile(temporary, buffer.Bytes(), mode); err != nil {
		return ArchiveHeader{}, fmt.Errorf("writing %s: %w", temporary, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return ArchiveHeader{}, fmt.Errorf("renaming %s: %w", temporary, err)
	}
	return header, nil
}

// ReadArchiveFile reads and verifies the archive at path.
func ReadArchiveFile(path string) (ArchiveHeader, *Snapshot, error) {
	return readArchiveFile(path, nil)
}

// ReadSealedArchiveFile reads an archive that may be sealed, opening it
// with identity. A plain archive is read as is.
func ReadSealedArchiveFile(path string, identity *secret.Buffer) (ArchiveHeader, *Snapshot, error) {
	return readArchiveFile(path, identity)
}

func readArchiveFile(path string, identity *secret.Buffer) (ArchiveHeader, *Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return ArchiveHeader{}, nil, err
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	var source io.Reader = buffered
	if sealed.IsSealed(buffered) {
		if identity == nil {
			return ArchiveHeader{}, nil, fmt.Errorf("%s: %w", path, ErrSealed)
		}
		source, err = sealed.Open(buffered, identity)
		if err != nil {
			return ArchiveHeader{}, nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	header, snapshot, err := ReadArchive(source)
	if err != nil {
		return ArchiveHeader{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return header, snapshot, nil
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		destination := make([]byte, lz4.CompressBlockBound(len(data)))
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}

func decompress(data []byte, compression Compression, size int) ([]byte, error) {
	switch compression {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("uncompressed payload: size %d, header says %d", len(data), size)
		}
		return data, nil

	case CompressionLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, header says %d", read, size)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, header says %d", len(result), size)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("unsupported compression %s", compression)
	}
}
