package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/halcyontrade/marketsynth/pkg/models"
)

// Message type discriminators used in journal envelopes.
const (
	TypeSnapshot = "snapshot"
	TypeTrade    = "trade"
	TypeLevel1   = "level1"
	TypeIntent   = "intent"
	TypeSecurity = "security"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Journal reads a historical message journal: one JSON envelope per line,
// in nondecreasing timestamp order. The replay driver owns ordering; the
// journal only decodes.
type Journal struct {
	path    string
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

// OpenJournal opens a journal file for sequential reading.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Journal{path: path, file: file, scanner: scanner}, nil
}

// Next decodes the next message, returning io.EOF when the journal is
// exhausted. A malformed line aborts the read with a line-numbered error.
func (j *Journal) Next() (models.Message, error) {
	for j.scanner.Scan() {
		j.line++
		raw := j.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		msg, err := decodeEnvelope(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", j.path, j.line, err)
		}
		return msg, nil
	}
	if err := j.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal %s: %w", j.path, err)
	}
	return nil, io.EOF
}

// ReadAll drains the journal into memory.
func (j *Journal) ReadAll() ([]models.Message, error) {
	var out []models.Message
	for {
		msg, err := j.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
}

// Close releases the underlying file.
func (j *Journal) Close() error {
	return j.file.Close()
}

func decodeEnvelope(raw []byte) (models.Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg models.Message
	switch env.Type {
	case TypeSnapshot:
		msg = &models.SnapshotMessage{}
	case TypeTrade:
		msg = &models.TradeMessage{}
	case TypeLevel1:
		msg = &models.Level1Message{}
	case TypeIntent:
		msg = &models.OrderIntentMessage{}
	case TypeSecurity:
		msg = &models.SecurityDefinitionMessage{}
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return nil, fmt.Errorf("decode %s message: %w", env.Type, err)
	}
	return msg, nil
}

// MessageType returns the envelope discriminator for a message.
func MessageType(msg models.Message) string {
	switch msg.(type) {
	case *models.SnapshotMessage:
		return TypeSnapshot
	case *models.TradeMessage:
		return TypeTrade
	case *models.Level1Message:
		return TypeLevel1
	case *models.OrderIntentMessage:
		return TypeIntent
	case *models.SecurityDefinitionMessage:
		return TypeSecurity
	default:
		return "unknown"
	}
}

// WriteMessage appends one message envelope to w, JSON-lines encoded.
// Used by tooling and tests to produce journals the reader accepts.
func WriteMessage(w io.Writer, msg models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", MessageType(msg), err)
	}
	env := envelope{Type: MessageType(msg), Data: data}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}
