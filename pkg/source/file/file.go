// Package file implements the "file" source: it tails a file, decoding
// each new line as either JSON or raw text, and emits it as a log event.
package file

import (
	"context"
	"encoding/json"

	"github.com/nxadm/tail"
	"github.com/user/beacon"
)

// Codec selects how each tailed line is decoded before being sent as a Log.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecText Codec = "text"
)

// Source tails Filepath and decodes each new line per Codec.
type Source struct {
	Filepath string
	Codec    Codec
	logger   beacon.Logger
}

// New builds a file Source for the given path and codec.
func New(filepath string, codec Codec) *Source {
	return &Source{Filepath: filepath, Codec: codec}
}

// SetLogger wires an optional structured logger.
func (s *Source) SetLogger(l beacon.Logger) { s.logger = l }

// Produce tails the file from its current end, emitting one Log per line
// until ctx is cancelled or the tail fails unrecoverably.
func (s *Source) Produce(ctx context.Context, client beacon.Client) error {
	t, err := tail.TailFile(s.Filepath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Location: &tail.SeekInfo{Whence: 2},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				if s.logger != nil {
					s.logger.Warn("file tail line error", "file", s.Filepath, "err", line.Err)
				}
				continue
			}
			if err := s.emit(client, line.Text); err != nil {
				return err
			}
		}
	}
}

func (s *Source) emit(client beacon.Client, text string) error {
	if s.Codec == CodecJSON {
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			if s.logger != nil {
				s.logger.Warn("file line is not valid JSON", "file", s.Filepath, "err", err)
			}
			return nil
		}
		return client.SendLog(beacon.Log{Inner: v})
	}
	return client.SendLog(beacon.Log{Inner: text})
}
