// Package command turns a decrypted JSON object into one of the four mailbox
// commands. Every validation rule lives in Parse.
package command

import (
	"bytes"
	"encoding/json"

	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"
)

const op = "command.parse"

type Name string

const (
	NameUpload   Name = "upload"
	NameCount    Name = "count"
	NameDownload Name = "download"
	NameDelete   Name = "delete"
)

type (
	Command interface {
		Name() Name
	}

	Upload struct {
		To      model.HPK
		Payload json.RawMessage
	}

	Count struct{}

	Download struct {
		Start int
	}

	Delete struct {
		IDs []int64
	}

	wire struct {
		Cmd     json.RawMessage `json:"cmd"`
		To      *string         `json:"to"`
		Payload json.RawMessage `json:"payload"`
		Start   *int            `json:"start"`
	}
)

func (Upload) Name() Name   { return NameUpload }
func (Count) Name() Name    { return NameCount }
func (Download) Name() Name { return NameDownload }
func (Delete) Name() Name   { return NameDelete }

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Parse validates plaintext and returns Upload, Count, Download or Delete.
func Parse(plaintext []byte) (Command, error) {
	var w wire
	if err := json.Unmarshal(plaintext, &w); err != nil {
		return nil, zaxerr.Wrap(zaxerr.MalformedCommand, op, err)
	}
	if isAbsent(w.Cmd) {
		return nil, zaxerr.New(zaxerr.UnknownCommand, op, "missing command")
	}
	var name string
	if err := json.Unmarshal(w.Cmd, &name); err != nil {
		return nil, zaxerr.New(zaxerr.UnknownCommand, op, "command is not a string: %s", w.Cmd)
	}

	switch Name(name) {
	case NameUpload:
		if w.To == nil {
			return nil, zaxerr.New(zaxerr.MalformedCommand, op, "no destination hpk in upload")
		}
		to, err := model.ParseHPK(*w.To)
		if err != nil {
			return nil, zaxerr.Wrap(zaxerr.MalformedCommand, op, err)
		}
		if isAbsent(w.Payload) {
			return nil, zaxerr.New(zaxerr.MalformedCommand, op, "no payload in upload")
		}
		return Upload{To: to, Payload: w.Payload}, nil

	case NameCount:
		return Count{}, nil

	case NameDownload:
		start, err := downloadStart(&w)
		if err != nil {
			return nil, err
		}
		return Download{Start: start}, nil

	case NameDelete:
		if isAbsent(w.Payload) {
			return nil, zaxerr.New(zaxerr.MalformedCommand, op, "no ids to delete")
		}
		var ids []int64
		if err := json.Unmarshal(w.Payload, &ids); err != nil {
			return nil, zaxerr.Wrap(zaxerr.MalformedCommand, op, err)
		}
		if len(ids) == 0 {
			return nil, zaxerr.New(zaxerr.MalformedCommand, op, "no ids to delete")
		}
		return Delete{IDs: ids}, nil
	}

	return nil, zaxerr.New(zaxerr.UnknownCommand, op, "unknown command %q", name)
}

// downloadStart reads "start" at the top level, falling back to payload.start.
// A payload that is not an object carries no start.
func downloadStart(w *wire) (int, error) {
	if w.Start != nil {
		return *w.Start, nil
	}
	if isAbsent(w.Payload) || !isObject(w.Payload) {
		return 0, nil
	}

	var p struct {
		Start *int `json:"start"`
	}
	if err := json.Unmarshal(w.Payload, &p); err != nil {
		return 0, zaxerr.Wrap(zaxerr.MalformedCommand, op, err)
	}
	if p.Start == nil {
		return 0, nil
	}
	return *p.Start, nil
}
