package namespace

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Log frames are [length u32][crc32 u32][CBOR command], big-endian.
const (
	frameHeaderSize = 8
	maxFrameSize    = 64 << 20
)

var (
	// ErrLogCorrupt is returned when a complete frame fails its checksum.
	ErrLogCorrupt = errors.New("command log corrupted")

	// ErrLogClosed is returned by Append after Close.
	ErrLogClosed = errors.New("command log is closed")
)

// LogFile is an append-only file of commands.
type LogFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLog opens or creates the log at path and returns the commands it
// holds. A torn frame at the end, left by an interrupted append, is cut off.
func OpenLog(path string) (*LogFile, []Command, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open command log: %w", err)
	}
	cmds, good, err := readFrames(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat command log: %w", err)
	}
	if fi.Size() > good {
		log.Warningf("truncating torn tail of %s at offset %d (%d bytes)", path, good, fi.Size()-good)
		if err := f.Truncate(good); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("truncate command log: %w", err)
		}
	}
	if _, err := f.Seek(good, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("seek command log: %w", err)
	}
	log.Infof("opened command log %s with %d commands", path, len(cmds))
	return &LogFile{path: path, f: f}, cmds, nil
}

// readFrames decodes frames until EOF or a torn frame. It returns the
// offset just past the last complete frame.
func readFrames(r io.Reader) ([]Command, int64, error) {
	br := bufio.NewReader(r)
	var cmds []Command
	var off int64
	for {
		var hdr [frameHeaderSize]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return cmds, off, nil
			}
			return nil, 0, err
		}
		n := binary.BigEndian.Uint32(hdr[:4])
		sum := binary.BigEndian.Uint32(hdr[4:])
		if n > maxFrameSize {
			return nil, 0, fmt.Errorf("%w: frame at %d claims %d bytes", ErrLogCorrupt, off, n)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return cmds, off, nil
			}
			return nil, 0, err
		}
		if got := crc32.ChecksumIEEE(body); got != sum {
			return nil, 0, fmt.Errorf("%w: frame at %d: stored=%08x computed=%08x", ErrLogCorrupt, off, sum, got)
		}
		cmd, err := UnmarshalCommand(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: frame at %d: %w", ErrLogCorrupt, off, err)
		}
		cmds = append(cmds, cmd)
		off += frameHeaderSize + int64(n)
	}
}

// Append writes cmd and syncs the file.
func (l *LogFile) Append(cmd Command) error {
	body, err := MarshalCommand(cmd)
	if err != nil {
		return err
	}
	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	binary.BigEndian.PutUint32(frame[4:], crc32.ChecksumIEEE(body))
	frame = append(frame, body...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrLogClosed
	}
	if _, err := l.f.Write(frame); err != nil {
		return fmt.Errorf("append to %s: %w", l.path, err)
	}
	return l.f.Sync()
}

// Path returns the log file path.
func (l *LogFile) Path() string { return l.path }

// Close closes the file. Further appends fail.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
