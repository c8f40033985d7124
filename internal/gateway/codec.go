package gateway

import (
	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/wire"
)

// DecodeRequest parses f's body according to f.Type's fixed layout
// (§4.6), the same cursor-driven decoding internal/wire.Reader gives the
// codec in general.
func DecodeRequest(f *wire.Frame) (*Request, error) {
	r := wire.NewReader(f.Body)
	req := &Request{Type: f.Type}

	switch f.Type {
	case HELO:
		id, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		req.ClientID = id

	case HEARTBEAT:
		ts, err := readField(r.Uint64())
		if err != nil {
			return nil, err
		}
		req.Timestamp = ts

	case OPEN:
		name, err := readField(r.Text())
		if err != nil {
			return nil, err
		}
		flags, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		vfs, err := readField(r.Text())
		if err != nil {
			return nil, err
		}
		req.Open.Name = name
		req.Open.Flags = dbase.OpenFlags(flags)
		req.Open.VFS = vfs

	case PREPARE:
		dbID, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		sql, err := readField(r.Text())
		if err != nil {
			return nil, err
		}
		req.Prepare.DBID = dbID
		req.Prepare.SQL = sql

	case EXEC, QUERY:
		dbID, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		stmtID, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		params, err := decodeParams(r)
		if err != nil {
			return nil, err
		}
		if f.Type == EXEC {
			req.Exec.DBID, req.Exec.StmtID, req.Exec.Params = dbID, stmtID, params
		} else {
			req.Query.DBID, req.Query.StmtID, req.Query.Params = dbID, stmtID, params
		}

	case FINALIZE:
		dbID, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		stmtID, err := readField(r.Uint32())
		if err != nil {
			return nil, err
		}
		req.Finalize.DBID = dbID
		req.Finalize.StmtID = stmtID

	default:
		return nil, ErrUnknownRequestType
	}

	return req, nil
}

// readField treats wire.ErrEOM as success: a field read that happens to
// land on the body's last byte is still a valid field, just also the
// end-of-message signal (§7).
func readField[T any](v T, err error) (T, error) {
	if err != nil && err != wire.ErrEOM {
		return v, err
	}
	return v, nil
}

// decodeParams reads EXEC/QUERY's optional trailing parameter list: a
// one-byte count, that many one-byte type tags (not nibble-packed —
// nibble packing is only for ROWS row headers), padded as a group to the
// next 8-byte boundary, then one 8-byte-aligned value per parameter.
func decodeParams(r *wire.Reader) ([]dbase.Param, error) {
	if r.Remaining() == 0 {
		return nil, nil
	}

	n, err := readField(r.Uint8())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := skipAlign(r); err != nil {
			return nil, err
		}
		return nil, nil
	}

	tags := make([]dbase.ParamType, n)
	for i := range tags {
		tag, err := readField(r.Uint8())
		if err != nil {
			return nil, err
		}
		tags[i] = dbase.ParamType(tag)
	}
	if err := skipAlign(r); err != nil {
		return nil, err
	}

	params := make([]dbase.Param, n)
	for i, tag := range tags {
		p, err := decodeValue(r, tag)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	return params, nil
}

func skipAlign(r *wire.Reader) error {
	if err := r.Align(); err != nil && err != wire.ErrEOM {
		return err
	}
	return nil
}

// decodeValue reads one 8-byte-aligned value of the given type, the
// shared encoding between request parameters and response row columns.
func decodeValue(r *wire.Reader, tag dbase.ParamType) (dbase.Param, error) {
	switch tag {
	case dbase.TypeInteger:
		v, err := readField(r.Int64())
		return dbase.Param{Type: tag, Int: v}, err
	case dbase.TypeFloat:
		v, err := readField(r.Double())
		return dbase.Param{Type: tag, Real: v}, err
	case dbase.TypeText:
		v, err := readField(r.Text())
		return dbase.Param{Type: tag, Text: v}, err
	case dbase.TypeNull:
		_, err := readField(r.Uint64())
		return dbase.Param{Type: tag}, err
	case dbase.TypeBlob:
		// Length-prefixed, not \0-terminated like Text: a blob may
		// legitimately contain zero bytes. Neither spec.md nor
		// test_gateway.c exercises BLOB, so this is a reasoned
		// extrapolation from the other per-type encodings rather than
		// a recovered wire format.
		n, err := readField(r.Uint64())
		if err != nil {
			return dbase.Param{Type: tag}, err
		}
		buf := make([]byte, n)
		for i := range buf {
			b, err := readField(r.Uint8())
			if err != nil {
				return dbase.Param{Type: tag}, err
			}
			buf[i] = b
		}
		if err := skipAlign(r); err != nil {
			return dbase.Param{Type: tag}, err
		}
		return dbase.Param{Type: tag, Blob: buf}, nil
	default:
		_, err := readField(r.Uint64())
		return dbase.Param{Type: tag}, err
	}
}

// encodeValue appends one 8-byte-aligned value to w, the write-side
// counterpart of decodeValue.
func encodeValue(w *wire.Writer, p dbase.Param) {
	switch p.Type {
	case dbase.TypeInteger:
		w.Int64(p.Int)
	case dbase.TypeFloat:
		w.Double(p.Real)
	case dbase.TypeText:
		w.Text(p.Text)
	case dbase.TypeBlob:
		w.Uint64(uint64(len(p.Blob)))
		for _, b := range p.Blob {
			w.Uint8(b)
		}
		w.Pad()
	case dbase.TypeNull:
		w.Uint64(0)
	}
}

// encodeRows appends rows's row headers and values to w (§4.6's row
// encoding): a nibble-packed type-tag header per row, then that row's
// 8-byte-aligned values, rows emitted contiguously.
func encodeRows(w *wire.Writer, rows dbase.Rows) {
	for _, row := range rows.Rows {
		tags := make([]uint8, len(row.Values))
		for i, v := range row.Values {
			tags[i] = uint8(v.Type)
		}
		w.RowHeader(tags)
		for _, v := range row.Values {
			encodeValue(w, v)
		}
	}
}
