package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// sampleExts is the lookup order for <dir>/<note>.<ext>.
var sampleExts = []string{"wav", "mp3", "ogg", "flac"}

var errNoSample = errors.New("no sample file found")

// FindSample returns the first existing sample file for note in dir.
func FindSample(dir, note string) (string, error) {
	for _, ext := range sampleExts {
		p := filepath.Join(dir, note+"."+ext)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", &FileError{
		Note: note,
		Err:  fmt.Errorf("%w: expected something like %s.wav in %s", errNoSample, note, dir),
	}
}

type decodeFunc func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".wav":  func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(rc) },
	".mp3":  mp3.Decode,
	".ogg":  vorbis.Decode,
	".flac": func(rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(rc) },
}

// loadSample decodes a whole file into memory so voices can loop it without
// holding the file open.
func loadSample(note, path string) (*beep.Buffer, error) {
	decode, ok := decoders[filepath.Ext(path)]
	if !ok {
		return nil, &FileError{Note: note, Path: path, Err: fmt.Errorf("unsupported format")}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &FileError{Note: note, Path: path, Err: err}
	}

	// Decoders take ownership of f; Close on the stream closes it.
	stream, format, err := decode(f)
	if err != nil {
		f.Close()
		return nil, &FileError{Note: note, Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	defer stream.Close()

	buf := beep.NewBuffer(format)
	buf.Append(stream)
	if err := stream.Err(); err != nil {
		return nil, &FileError{Note: note, Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if buf.Len() == 0 {
		return nil, &FileError{Note: note, Path: path, Err: errors.New("sample is empty")}
	}
	return buf, nil
}
