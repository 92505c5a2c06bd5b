// Package snapshot exports and restores a ledger as a single checksummed binary stream.
//
// Layout, all integers big-endian:
//
//	magic "VESNAP01"
//	params  5 x u64
//	count   u64
//	count x (u32 id length | id | 16-byte amount | u64 unlock time)
//	BLAKE2b-256 of every preceding byte
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/congo-pay/order_stake/internal/ledger"
)

// ErrCorrupt is returned when a snapshot is truncated, malformed or fails its digest check.
var ErrCorrupt = errors.New("snapshot corrupt")

const (
	magic       = "VESNAP01"
	paramsSize  = 5 * 8
	amountSize  = 16
	maxIDLength = 1 << 10
)

// Snapshot is the decoded content of a snapshot stream.
type Snapshot struct {
	Params  ledger.Params
	Records []ledger.Record
}

// Export writes every lock in l to w and returns the number of records written.
// The records are collected under a single scan so the snapshot is consistent.
func Export(ctx context.Context, w io.Writer, l *ledger.Ledger) (uint64, error) {
	var records []ledger.Record
	err := l.Iterate(ctx, func(id ledger.AccountID, lock ledger.LockedBalance) error {
		records = append(records, ledger.Record{Account: id, Balance: lock})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan ledger: %w", err)
	}
	if err := Encode(w, Snapshot{Params: l.Params(), Records: records}); err != nil {
		return 0, err
	}
	return uint64(len(records)), nil
}

// Import reads a snapshot from r and writes its records into l, which must have been
// opened with the same params. Nothing is written unless the whole stream verifies.
func Import(ctx context.Context, r io.Reader, l *ledger.Ledger) (uint64, error) {
	snap, err := Decode(r)
	if err != nil {
		return 0, err
	}
	if err := l.Restore(ctx, snap.Params, snap.Records); err != nil {
		return 0, fmt.Errorf("restore ledger: %w", err)
	}
	return uint64(len(snap.Records)), nil
}

// Encode writes snap to w.
func Encode(w io.Writer, snap Snapshot) error {
	digest, err := blake2b.New256(nil)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	out := io.MultiWriter(bw, digest)

	var scratch [8]byte
	if _, err := io.WriteString(out, magic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := out.Write(ledger.EncodeParams(snap.Params)); err != nil {
		return fmt.Errorf("write params: %w", err)
	}
	binary.BigEndian.PutUint64(scratch[:], uint64(len(snap.Records)))
	if _, err := out.Write(scratch[:]); err != nil {
		return fmt.Errorf("write count: %w", err)
	}

	rec := make([]byte, 0, 4+64+amountSize+8)
	for _, r := range snap.Records {
		if len(r.Account) > maxIDLength {
			return fmt.Errorf("%w: account id of %d bytes", ledger.ErrInvalidArgument, len(r.Account))
		}
		if r.Balance.Amount.BitLen() > ledger.MaxAmountBits {
			return fmt.Errorf("%w: amount for %s exceeds %d bits", ledger.ErrInvalidArgument, r.Account, ledger.MaxAmountBits)
		}
		rec = rec[:0]
		rec = binary.BigEndian.AppendUint32(rec, uint32(len(r.Account)))
		rec = append(rec, r.Account...)
		var amount [amountSize]byte
		ledger.EncodeAmount(amount[:], &r.Balance.Amount)
		rec = append(rec, amount[:]...)
		rec = binary.BigEndian.AppendUint64(rec, r.Balance.UnlockTime)
		if _, err := out.Write(rec); err != nil {
			return fmt.Errorf("write record %s: %w", r.Account, err)
		}
	}

	if _, err := bw.Write(digest.Sum(nil)); err != nil {
		return fmt.Errorf("write digest: %w", err)
	}
	return bw.Flush()
}

// Decode reads and verifies a snapshot from r.
func Decode(r io.Reader) (Snapshot, error) {
	digest, err := blake2b.New256(nil)
	if err != nil {
		return Snapshot{}, err
	}
	br := bufio.NewReader(r)
	in := &hashingReader{r: br, h: digest}

	head := make([]byte, len(magic)+paramsSize+8)
	if err := in.readFull(head); err != nil {
		return Snapshot{}, err
	}
	if string(head[:len(magic)]) != magic {
		return Snapshot{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, head[:len(magic)])
	}
	params, err := ledger.DecodeParams(head[len(magic) : len(magic)+paramsSize])
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	count := binary.BigEndian.Uint64(head[len(magic)+paramsSize:])

	snap := Snapshot{Params: params}
	var fixed [amountSize + 8]byte
	var idLen [4]byte
	for i := uint64(0); i < count; i++ {
		if err := in.readFull(idLen[:]); err != nil {
			return Snapshot{}, err
		}
		n := binary.BigEndian.Uint32(idLen[:])
		if n == 0 || n > maxIDLength {
			return Snapshot{}, fmt.Errorf("%w: record %d has id length %d", ErrCorrupt, i, n)
		}
		id := make([]byte, n)
		if err := in.readFull(id); err != nil {
			return Snapshot{}, err
		}
		if err := in.readFull(fixed[:]); err != nil {
			return Snapshot{}, err
		}
		snap.Records = append(snap.Records, ledger.Record{
			Account: ledger.AccountID(id),
			Balance: ledger.LockedBalance{
				Amount:     ledger.DecodeAmount(fixed[:amountSize]),
				UnlockTime: binary.BigEndian.Uint64(fixed[amountSize:]),
			},
		})
	}

	want := digest.Sum(nil)
	got := make([]byte, len(want))
	if _, err := io.ReadFull(br, got); err != nil {
		return Snapshot{}, fmt.Errorf("%w: missing digest", ErrCorrupt)
	}
	if !bytes.Equal(want, got) {
		return Snapshot{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return Snapshot{}, fmt.Errorf("%w: trailing data after digest", ErrCorrupt)
	}
	return snap, nil
}

type hashingReader struct {
	r io.Reader
	h hash.Hash
}

func (hr *hashingReader) readFull(buf []byte) error {
	if _, err := io.ReadFull(hr.r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated", ErrCorrupt)
		}
		return err
	}
	hr.h.Write(buf)
	return nil
}
