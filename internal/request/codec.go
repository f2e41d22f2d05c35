// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"bufio"

	"github.com/jontk/batchsched/internal/attr"
	"github.com/jontk/batchsched/internal/entity"
	"github.com/jontk/batchsched/internal/jobstate"
	"github.com/jontk/batchsched/internal/wire"
)

// field defers one primitive write so multi-field frames read as a
// single writeAll call.
type field func(w *bufio.Writer) error

func strField(s string) field {
	return func(w *bufio.Writer) error { return wire.WriteString(w, s) }
}

func uintField(v uint64) field {
	return func(w *bufio.Writer) error { return wire.WriteUint(w, v) }
}

func longField(v int64) field {
	return func(w *bufio.Writer) error { return wire.WriteLong(w, v) }
}

func writeAll(w *bufio.Writer, fields ...field) error {
	for _, f := range fields {
		if err := f(w); err != nil {
			return err
		}
	}
	return nil
}

func writeUint(w *bufio.Writer, v uint64) error { return wire.WriteUint(w, v) }

func readUint(r *bufio.Reader) (uint64, error)   { return wire.ReadUint(r) }
func readLong(r *bufio.Reader) (int64, error)    { return wire.ReadLong(r) }
func readString(r *bufio.Reader) (string, error) { return wire.ReadString(r) }

// Encode writes req onto the wire as a sequence of framed primitives:
// the operation code, identity and credential strings, the attribute
// change list, then the fixed payload fields. Every request carries
// every payload slot so the framing is position-independent of the
// operation.
func Encode(w *bufio.Writer, req *Request) error {
	if err := writeAll(w,
		uintField(uint64(req.Op)),
		strField(req.ID),
		strField(req.Creds.User),
		uintField(uint64(req.Creds.Priv)),
		strField(req.Target),
	); err != nil {
		return err
	}

	if err := writeUint(w, uint64(len(req.Changes))); err != nil {
		return err
	}
	for _, ch := range req.Changes {
		if err := writeAll(w,
			strField(ch.Name),
			strField(ch.Resource),
			uintField(uint64(ch.Op)),
			strField(ch.Value),
		); err != nil {
			return err
		}
	}

	if err := writeAll(w,
		strField(req.Signal),
		strField(req.HoldType),
		strField(req.Destination),
		strField(req.Assignment.ExecVnode),
		strField(req.Assignment.ExecHost),
		uintField(uint64(req.ShutdownType)),
		uintField(uint64(req.ShutdownTarget)),
	); err != nil {
		return err
	}
	return w.Flush()
}

// Decode reads one request written by Encode.
func Decode(r *bufio.Reader) (*Request, error) {
	req := &Request{}

	op, err := readUint(r)
	if err != nil {
		return nil, err
	}
	req.Op = Op(op)

	if req.ID, err = readString(r); err != nil {
		return nil, err
	}
	if req.Creds.User, err = readString(r); err != nil {
		return nil, err
	}
	priv, err := readUint(r)
	if err != nil {
		return nil, err
	}
	req.Creds.Priv = attr.Privilege(priv)
	if req.Target, err = readString(r); err != nil {
		return nil, err
	}

	n, err := readUint(r)
	if err != nil {
		return nil, err
	}
	req.Changes = make([]attr.Change, n)
	for i := range req.Changes {
		ch := &req.Changes[i]
		if ch.Name, err = readString(r); err != nil {
			return nil, err
		}
		if ch.Resource, err = readString(r); err != nil {
			return nil, err
		}
		opv, err := readUint(r)
		if err != nil {
			return nil, err
		}
		ch.Op = attr.Op(opv)
		if ch.Value, err = readString(r); err != nil {
			return nil, err
		}
	}

	if req.Signal, err = readString(r); err != nil {
		return nil, err
	}
	if req.HoldType, err = readString(r); err != nil {
		return nil, err
	}
	if req.Destination, err = readString(r); err != nil {
		return nil, err
	}
	var a jobstate.Assignment
	if a.ExecVnode, err = readString(r); err != nil {
		return nil, err
	}
	if a.ExecHost, err = readString(r); err != nil {
		return nil, err
	}
	req.Assignment = a

	st, err := readUint(r)
	if err != nil {
		return nil, err
	}
	req.ShutdownType = entity.ShutdownType(st)
	tgt, err := readUint(r)
	if err != nil {
		return nil, err
	}
	req.ShutdownTarget = entity.ShutdownTarget(tgt)
	return req, nil
}

// EncodeReply writes a reply: request ID, code, message, offending
// index, then the status entries.
func EncodeReply(w *bufio.Writer, rep *Reply) error {
	if err := writeAll(w,
		strField(rep.RequestID),
		longField(int64(rep.Code)),
		strField(rep.Message),
		uintField(uint64(rep.AttrIndex)),
		uintField(uint64(len(rep.Status))),
	); err != nil {
		return err
	}
	for _, e := range rep.Status {
		if err := writeAll(w,
			strField(e.Kind),
			strField(e.Name),
			strField(e.State),
			uintField(uint64(len(e.Attrs))),
		); err != nil {
			return err
		}
		for _, a := range e.Attrs {
			if err := writeAll(w, strField(a.Name), strField(a.Resource), strField(a.Value)); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// DecodeReply reads one reply written by EncodeReply.
func DecodeReply(r *bufio.Reader) (*Reply, error) {
	rep := &Reply{}
	var err error
	if rep.RequestID, err = readString(r); err != nil {
		return nil, err
	}
	code, err := readLong(r)
	if err != nil {
		return nil, err
	}
	rep.Code = int(code)
	if rep.Message, err = readString(r); err != nil {
		return nil, err
	}
	idx, err := readUint(r)
	if err != nil {
		return nil, err
	}
	rep.AttrIndex = int(idx)

	n, err := readUint(r)
	if err != nil {
		return nil, err
	}
	rep.Status = make([]StatusEntry, n)
	for i := range rep.Status {
		e := &rep.Status[i]
		if e.Kind, err = readString(r); err != nil {
			return nil, err
		}
		if e.Name, err = readString(r); err != nil {
			return nil, err
		}
		if e.State, err = readString(r); err != nil {
			return nil, err
		}
		an, err := readUint(r)
		if err != nil {
			return nil, err
		}
		e.Attrs = make([]attr.EncodedEntry, an)
		for j := range e.Attrs {
			a := &e.Attrs[j]
			if a.Name, err = readString(r); err != nil {
				return nil, err
			}
			if a.Resource, err = readString(r); err != nil {
				return nil, err
			}
			if a.Value, err = readString(r); err != nil {
				return nil, err
			}
		}
	}
	return rep, nil
}
